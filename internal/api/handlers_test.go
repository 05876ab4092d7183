package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustJay7/cyber-case-triage/internal/cache"
	"github.com/JustJay7/cyber-case-triage/internal/cases"
	"github.com/JustJay7/cyber-case-triage/internal/config"
	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/internal/grouping"
	"github.com/JustJay7/cyber-case-triage/internal/metrics"
	"github.com/JustJay7/cyber-case-triage/internal/scoring"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

func setupTestRouter(t *testing.T, withModel bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Initialize(":memory:")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := &config.Config{
		CacheSize:         100,
		CacheTTL:          time.Minute,
		ModelPath:         filepath.Join(dir, "model.json"),
		MinTrainingRows:   scoring.DefaultMinRows,
		RidgeLambda:       1.0,
		HonorificPrefixes: config.DefaultHonorificPrefixes,
		PhoneCountryCode:  "66",
		UploadDir:         filepath.Join(dir, "uploads"),
		AllowedExtensions: []string{"png", "pdf"},
		MaxUploadSize:     1 << 20,
		PageSize:          12,
	}

	log := logger.NewNop()
	m, err := metrics.New()
	require.NoError(t, err)

	norm := evidence.NewNormalizer(cfg.HonorificPrefixes, cfg.PhoneCountryCode)
	scorer := scoring.NewScorer(cfg.MinTrainingRows, cfg.RidgeLambda)
	if withModel {
		p, err := scoring.Fit(scoring.Bootstrap(), cfg.RidgeLambda)
		require.NoError(t, err)
		scorer.Swap(p)
	}
	agg := grouping.NewAggregator(db, norm)
	testCache := cache.NewCache(cfg.CacheSize, cfg.CacheTTL)

	svc := cases.NewService(cases.Dependencies{
		DB:         db,
		Scorer:     scorer,
		Artifacts:  scoring.FileStore{},
		Linker:     grouping.NewLinker(db, norm, agg, m, log),
		Aggregator: agg,
		Normalizer: norm,
		Cache:      testCache,
		Metrics:    m,
		Logger:     log,
	}, cases.OptionsFromConfig(cfg))

	router := gin.New()
	SetupRoutes(router, svc, db, testCache, m, log, cfg)
	return router
}

type envelope struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields"`
	Data       json.RawMessage   `json:"data"`
	Pagination *cases.Pagination `json:"pagination"`
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func caseBody(name, account string) gin.H {
	body := gin.H{
		"case_details": gin.H{
			"case_name":                  name,
			"case_type":                  "Online Fraud",
			"estimated_financial_damage": 1500,
			"num_victims":                2,
			"reputational_damage_level":  "Medium",
			"ongoing_threat":             true,
		},
		"complainant": gin.H{
			"first_name":   "Somchai",
			"last_name":    "Dee",
			"phone_number": "081-234-5678",
		},
	}
	if account != "" {
		body["structured_evidence"] = []gin.H{
			{"evidence_type": "BANK_ACCOUNT", "evidence_value": account},
		}
	}
	return body
}

func createCase(t *testing.T, router *gin.Engine, name, account string) cases.CreateResult {
	t.Helper()
	w, env := do(t, router, http.MethodPost, "/api/cases", caseBody(name, account))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var res cases.CreateResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t, true)

	w, _ := do(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
}

func TestHealthCheckWithoutModel(t *testing.T) {
	router := setupTestRouter(t, false)

	w, _ := do(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, env := do(t, router, http.MethodPost, "/api/cases", caseBody("no model", ""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
}

func TestCreateAndLinkCases(t *testing.T) {
	router := setupTestRouter(t, true)

	first := createCase(t, router, "first", "123-456-789")
	assert.Nil(t, first.GroupID)
	assert.GreaterOrEqual(t, first.PriorityScore, 0.0)
	assert.LessOrEqual(t, first.PriorityScore, 100.0)

	// legacy path, same behavior
	w, env := do(t, router, http.MethodPost, "/api/rank_case", caseBody("second", "123456789"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second cases.CreateResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.NotNil(t, second.GroupID)

	w, env = do(t, router, http.MethodGet, "/api/groups/"+*second.GroupID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Group database.CaseGroup `json:"group"`
		Cases []database.Case    `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Len(t, summary.Cases, 2)
	assert.Equal(t, int64(4), summary.Group.TotalVictims)
	assert.Equal(t, 3000.0, summary.Group.TotalDamage)

	w, _ = do(t, router, http.MethodPost, "/api/groups/"+*second.GroupID+"/recompute", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateCaseValidation(t *testing.T) {
	router := setupTestRouter(t, true)

	body := caseBody("", "")
	w, env := do(t, router, http.MethodPost, "/api/cases", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Fields, "case_details.case_name")

	req := httptest.NewRequest(http.MethodPost, "/api/cases", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaseLifecycle(t *testing.T) {
	router := setupTestRouter(t, true)
	res := createCase(t, router, "lifecycle", "")

	w, env := do(t, router, http.MethodGet, "/api/cases/"+res.CaseID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail database.Case
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "lifecycle", detail.CaseName)
	require.NotNil(t, detail.Complainant)
	assert.Equal(t, "081-234-5678", detail.Complainant.PhoneNumber)

	w, env = do(t, router, http.MethodPut, "/api/cases/"+res.CaseID, gin.H{
		"case_details": gin.H{"status": "closed"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, database.StatusClosed, detail.Status)
	assert.NotNil(t, detail.ClosedAt)

	w, env = do(t, router, http.MethodPut, "/api/cases/"+res.CaseID, gin.H{
		"case_details": gin.H{"status": "archived"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Fields, "case_details.status")

	w, _ = do(t, router, http.MethodDelete, "/api/cases/"+res.CaseID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, router, http.MethodGet, "/api/cases/"+res.CaseID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, router, http.MethodDelete, "/api/cases/"+res.CaseID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCases(t *testing.T) {
	router := setupTestRouter(t, true)
	createCase(t, router, "alpha", "")
	createCase(t, router, "beta", "")

	w, env := do(t, router, http.MethodGet, "/api/cases?q=alp&ongoing_threat=true&min_damage=100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []database.Case
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alpha", list[0].CaseName)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.TotalRecords)

	w, env = do(t, router, http.MethodGet, "/api/cases?page=0&ongoing_threat=maybe&start_date=15-10-2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Fields, "page")
	assert.Contains(t, env.Fields, "ongoing_threat")
	assert.Contains(t, env.Fields, "start_date")
}

func TestEvidenceFileEndpoints(t *testing.T) {
	router := setupTestRouter(t, true)
	res := createCase(t, router, "files", "")

	upload := func(name string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/cases/"+res.CaseID+"/files", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := upload("statement.pdf")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var file database.EvidenceFile
	require.NoError(t, json.Unmarshal(env.Data, &file))

	assert.Equal(t, http.StatusBadRequest, upload("payload.exe").Code)

	w, env = do(t, router, http.MethodGet, "/api/cases/"+res.CaseID+"/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var files []database.EvidenceFile
	require.NoError(t, json.Unmarshal(env.Data, &files))
	assert.Len(t, files, 1)

	w, _ = do(t, router, http.MethodGet, "/api/files/"+file.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "statement.pdf")

	w, _ = do(t, router, http.MethodDelete, "/api/files/"+file.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, router, http.MethodGet, "/api/files/"+file.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetrainModelInsufficientData(t *testing.T) {
	router := setupTestRouter(t, true)
	createCase(t, router, "unverified", "")

	w, env := do(t, router, http.MethodPost, "/api/model/retrain", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, router, http.MethodPost, "/api/retrain_model", gin.H{"min_rows": 50})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardAndOpsEndpoints(t *testing.T) {
	router := setupTestRouter(t, true)
	createCase(t, router, "dash", "")

	w, env := do(t, router, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d cases.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, int64(1), d.Summary.TotalCases)
	assert.Len(t, d.LastSevenDays, 7)

	w, _ = do(t, router, http.MethodGet, "/api/cache/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cases_created_total{status="success"} 1`)

	w, _ = do(t, router, http.MethodGet, "/api/groups/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
