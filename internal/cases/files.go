package cases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/database"
)

// AddFile stores an uploaded evidence file for a case under a generated name.
func (s *Service) AddFile(ctx context.Context, caseID, originalName string, r io.Reader) (*database.EvidenceFile, error) {
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	name := filepath.Base(strings.TrimSpace(originalName))
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if name == "" || name == "." || ext == "" {
		return nil, fieldError("file", "must have a file name with an extension")
	}
	if !s.allowedExtension(ext) {
		return nil, fieldError("file", "extension must be one of "+strings.Join(s.opts.AllowedExtensions, ", "))
	}

	if err := os.MkdirAll(s.opts.UploadDir, 0755); err != nil {
		return nil, s.classify("create upload dir", err)
	}

	stored := uuid.New().String() + "." + ext
	path := filepath.Join(s.opts.UploadDir, stored)

	if err := s.writeBlob(path, r); err != nil {
		os.Remove(path)
		return nil, err
	}

	file := &database.EvidenceFile{
		CaseID:           caseID,
		OriginalFilename: name,
		StoredFilename:   stored,
		FilePath:         path,
		UploadedAt:       s.now(),
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		os.Remove(path)
		return nil, s.classify("save file record", err)
	}

	s.logger.Info("Evidence file stored", "case_id", caseID, "file_id", file.ID, "name", name)
	return file, nil
}

func (s *Service) writeBlob(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return s.classify("create file", err)
	}
	defer out.Close()

	src := r
	if s.opts.MaxUploadSize > 0 {
		src = io.LimitReader(r, s.opts.MaxUploadSize+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return s.classify("write file", err)
	}
	if s.opts.MaxUploadSize > 0 && n > s.opts.MaxUploadSize {
		return fieldError("file", fmt.Sprintf("must be at most %d bytes", s.opts.MaxUploadSize))
	}
	return out.Sync()
}

// ListFiles returns the evidence files of a case in upload order.
func (s *Service) ListFiles(ctx context.Context, caseID string) ([]database.EvidenceFile, error) {
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	files := []database.EvidenceFile{}
	if err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("uploaded_at ASC").
		Find(&files).Error; err != nil {
		return nil, s.classify("list files", err)
	}
	return files, nil
}

// File returns one evidence file record.
func (s *Service) File(ctx context.Context, fileID string) (*database.EvidenceFile, error) {
	var f database.EvidenceFile
	if err := s.db.WithContext(ctx).First(&f, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: file %s", ErrNotFound, fileID)
		}
		return nil, s.classify("load file", err)
	}
	return &f, nil
}

// DeleteFile removes the record and the stored blob.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	f, err := s.File(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&database.EvidenceFile{}, "id = ?", fileID).Error; err != nil {
		return s.classify("delete file record", err)
	}
	if err := os.Remove(f.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove evidence file", "path", f.FilePath, "error", err)
	}

	s.logger.Info("Evidence file deleted", "case_id", f.CaseID, "file_id", fileID)
	return nil
}

func (s *Service) allowedExtension(ext string) bool {
	for _, a := range s.opts.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

func (s *Service) caseExists(ctx context.Context, caseID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&database.Case{}).Where("id = ?", caseID).Count(&n).Error; err != nil {
		return s.classify("check case", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}
	return nil
}
