package grouping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
)

func TestRecomputeSkipsClosedMembers(t *testing.T) {
	f := newFixture(t)
	g := f.addGroup(t, "G001-20261015")

	f.addCase(t, database.Case{CreatedAt: at(1), GroupID: &g.ID, NumVictims: 3, EstimatedFinancialDamage: 1000})
	f.addCase(t, database.Case{CreatedAt: at(2), GroupID: &g.ID, NumVictims: 7, EstimatedFinancialDamage: 2000})
	f.addCase(t, database.Case{CreatedAt: at(9), GroupID: &g.ID, NumVictims: 50, EstimatedFinancialDamage: 99999,
		Status: database.StatusClosed})

	group, err := f.agg.Recompute(context.Background(), g.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(10), group.TotalVictims)
	assert.Equal(t, 3000.0, group.TotalDamage)
	assert.True(t, group.FirstCaseAt.Equal(at(1)))
	assert.True(t, group.LatestCaseAt.Equal(at(2)))
	assert.Nil(t, group.PrimaryEvidenceValue)
}

func TestRecomputeAllClosedMarksStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.addGroup(t, "G001-20261015")

	c := f.addCase(t, database.Case{CreatedAt: at(1), GroupID: &g.ID, NumVictims: 4, EstimatedFinancialDamage: 500})
	_, err := f.agg.Recompute(ctx, g.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&database.Case{}).Where("id = ?", c.ID).
		Update("status", database.StatusClosed).Error)

	group, err := f.agg.Recompute(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, group.SummaryStale)

	var stored database.CaseGroup
	require.NoError(t, f.db.First(&stored, "id = ?", g.ID).Error)
	assert.True(t, stored.SummaryStale)
	assert.Equal(t, int64(4), stored.TotalVictims)
	assert.Equal(t, 500.0, stored.TotalDamage)
}

func TestRecomputePrimaryEvidence(t *testing.T) {
	f := newFixture(t)
	g := f.addGroup(t, "G001-20261015")

	f.addCase(t, database.Case{CreatedAt: at(1), GroupID: &g.ID},
		ev{evidence.TypeBankAccount, "222-333"},
		ev{evidence.TypePhoneNumber, "0800000000"})
	f.addCase(t, database.Case{CreatedAt: at(2), GroupID: &g.ID},
		ev{evidence.TypeBankAccount, "222 333"},
		ev{evidence.TypeBankAccount, "111"})
	// closed members still count towards the primary account
	f.addCase(t, database.Case{CreatedAt: at(3), GroupID: &g.ID, Status: database.StatusClosed},
		ev{evidence.TypeBankAccount, "111"})

	group, err := f.agg.Recompute(context.Background(), g.ID)
	require.NoError(t, err)
	require.NotNil(t, group.PrimaryEvidenceValue)
	// 222333 and 111 both appear twice; the smaller value wins
	assert.Equal(t, "111", *group.PrimaryEvidenceValue)
}

func TestRecomputeUnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Recompute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestMostFrequent(t *testing.T) {
	f := newFixture(t)

	assert.Nil(t, f.agg.mostFrequent(nil))

	got := f.agg.mostFrequent([]string{"9-9", "99", "1"})
	require.NotNil(t, got)
	assert.Equal(t, "99", *got)
}
