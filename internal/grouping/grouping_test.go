package grouping

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/config"
	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

var today = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	norm   *evidence.Normalizer
	agg    *Aggregator
	linker *Linker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Initialize(":memory:")
	require.NoError(t, err)

	norm := evidence.NewNormalizer(config.DefaultHonorificPrefixes, "66")
	agg := NewAggregator(db, norm)
	linker := NewLinker(db, norm, agg, nil, logger.NewNop())
	linker.SetClock(func() time.Time { return today })

	return &fixture{db: db, norm: norm, agg: agg, linker: linker}
}

type ev struct{ typ, value string }

func (f *fixture) addCase(t *testing.T, c database.Case, items ...ev) *database.Case {
	t.Helper()

	if c.Status == "" {
		c.Status = database.StatusReceived
	}
	require.NoError(t, f.db.Create(&c).Error)

	for _, it := range items {
		require.NoError(t, f.db.Create(&database.StructuredEvidence{
			CaseID:          c.ID,
			EvidenceType:    it.typ,
			EvidenceValue:   it.value,
			NormalizedValue: f.norm.NormalizeEvidence(it.typ, it.value),
		}).Error)
	}
	return &c
}

func (f *fixture) addGroup(t *testing.T, number string) *database.CaseGroup {
	t.Helper()
	g := &database.CaseGroup{GroupNumber: number, GroupName: "existing " + number}
	require.NoError(t, f.db.Create(g).Error)
	return g
}

func (f *fixture) reload(t *testing.T, id string) database.Case {
	t.Helper()
	var c database.Case
	require.NoError(t, f.db.First(&c, "id = ?", id).Error)
	return c
}

func (f *fixture) countGroups(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&database.CaseGroup{}).Count(&n).Error)
	return n
}

func at(day int) time.Time {
	return time.Date(2026, 10, day, 9, 0, 0, 0, time.UTC)
}

func TestLinkSharedBankAccountCreatesGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.addCase(t, database.Case{CreatedAt: at(1), NumVictims: 3, EstimatedFinancialDamage: 1000},
		ev{evidence.TypeBankAccount, "123-456-789"})
	b := f.addCase(t, database.Case{CreatedAt: at(2), NumVictims: 7, EstimatedFinancialDamage: 2000},
		ev{evidence.TypeBankAccount, "123 456 789"})

	result, err := f.linker.Link(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Created)
	assert.Equal(t, "G001-20261015", result.GroupNumber)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, result.CaseIDs)

	ra, rb := f.reload(t, a.ID), f.reload(t, b.ID)
	require.NotNil(t, ra.GroupID)
	require.NotNil(t, rb.GroupID)
	assert.Equal(t, *ra.GroupID, *rb.GroupID)

	var group database.CaseGroup
	require.NoError(t, f.db.First(&group, "id = ?", result.GroupID).Error)
	assert.Equal(t, "case group linked by BANK_ACCOUNT: 123 456 789", group.GroupName)
	assert.Equal(t, int64(10), group.TotalVictims)
	assert.Equal(t, 3000.0, group.TotalDamage)
	require.NotNil(t, group.FirstCaseAt)
	assert.True(t, group.FirstCaseAt.Equal(at(1)))
	assert.True(t, group.LatestCaseAt.Equal(at(2)))
	require.NotNil(t, group.PrimaryEvidenceValue)
	assert.Equal(t, "123456789", *group.PrimaryEvidenceValue)
	assert.False(t, group.SummaryStale)
}

func TestLinkWithoutEvidenceDoesNothing(t *testing.T) {
	f := newFixture(t)
	c := f.addCase(t, database.Case{CreatedAt: at(1)})

	result, err := f.linker.Link(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, f.countGroups(t))
	assert.Nil(t, f.reload(t, c.ID).GroupID)
}

func TestLinkWithoutMatchDoesNothing(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypeBankAccount, "111"})
	c := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeBankAccount, "222"})

	result, err := f.linker.Link(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, f.countGroups(t))
}

func TestLinkIgnoresClosedCases(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, database.Case{CreatedAt: at(1), Status: database.StatusClosed},
		ev{evidence.TypeBankAccount, "555-000"})
	c := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeBankAccount, "555000"})

	result, err := f.linker.Link(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, f.countGroups(t))
}

func TestLinkRequiresSameEvidenceType(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypePhoneNumber, "0812345678"})
	c := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeBankAccount, "0812345678"})

	result, err := f.linker.Link(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLinkMatchesInternationalPhoneFormat(t *testing.T) {
	f := newFixture(t)
	a := f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypePhoneNumber, "081-234-5678"})
	c := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypePhoneNumber, "+66 81 234 5678"})

	result, err := f.linker.Link(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, result.CaseIDs)
}

func TestLinkJoinsExistingGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypeEmail, "Scam@Example.com"})
	b := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeEmail, "scam@example.com"})
	first, err := f.linker.Link(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	c := f.addCase(t, database.Case{CreatedAt: at(3)}, ev{evidence.TypeEmail, " SCAM@example.com "})
	second, err := f.linker.Link(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.False(t, second.Created)
	assert.Equal(t, first.GroupID, second.GroupID)
	assert.Equal(t, int64(1), f.countGroups(t))
	for _, id := range []string{a.ID, b.ID, c.ID} {
		gid := f.reload(t, id).GroupID
		require.NotNil(t, gid)
		assert.Equal(t, first.GroupID, *gid)
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypeWebsite, "fake-shop.example"})
	b := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeWebsite, "fakeshop.example"})

	first, err := f.linker.Link(ctx, b.ID)
	require.NoError(t, err)
	again, err := f.linker.Link(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, first.GroupID, again.GroupID)
	assert.False(t, again.Created)
	assert.Equal(t, int64(1), f.countGroups(t))
}

func TestLinkMergesIntoEarliestCaseGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g1 := f.addGroup(t, "G001-20261001")
	g2 := f.addGroup(t, "G001-20261003")

	a1 := f.addCase(t, database.Case{CreatedAt: at(1), GroupID: &g1.ID}, ev{evidence.TypeBankAccount, "111"})
	a2 := f.addCase(t, database.Case{CreatedAt: at(2), GroupID: &g1.ID}, ev{evidence.TypeBankAccount, "222"})
	b1 := f.addCase(t, database.Case{CreatedAt: at(3), GroupID: &g2.ID}, ev{evidence.TypePhoneNumber, "0812345678"})
	b2 := f.addCase(t, database.Case{CreatedAt: at(4), GroupID: &g2.ID}, ev{evidence.TypeEmail, "x@example.com"})

	c := f.addCase(t, database.Case{CreatedAt: at(5)},
		ev{evidence.TypeBankAccount, "222"},
		ev{evidence.TypePhoneNumber, "+66812345678"},
	)

	result, err := f.linker.Link(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, g1.ID, result.GroupID)
	assert.False(t, result.Created)
	assert.Equal(t, []string{g2.ID}, result.RetiredGroups)

	for _, id := range []string{a1.ID, a2.ID, b1.ID, b2.ID, c.ID} {
		gid := f.reload(t, id).GroupID
		require.NotNil(t, gid, "case %s", id)
		assert.Equal(t, g1.ID, *gid, "case %s", id)
	}

	var retired database.CaseGroup
	require.NoError(t, f.db.First(&retired, "id = ?", g2.ID).Error)
	require.NotNil(t, retired.MergedIntoID)
	assert.Equal(t, g1.ID, *retired.MergedIntoID)

	var merges []database.GroupMerge
	require.NoError(t, f.db.Find(&merges).Error)
	require.Len(t, merges, 1)
	assert.Equal(t, g2.ID, merges[0].SourceGroupID)
	assert.Equal(t, g1.ID, merges[0].TargetGroupID)
	assert.Equal(t, c.ID, merges[0].TriggerCaseID)
	assert.Equal(t, 2, merges[0].MovedCases)
}

func TestMergeTargetFollowsEarliestCreatedMember(t *testing.T) {
	f := newFixture(t)

	newer := f.addGroup(t, "G001-20261002")
	older := f.addGroup(t, "G002-20261002")

	f.addCase(t, database.Case{CreatedAt: at(4), GroupID: &newer.ID}, ev{evidence.TypeBankAccount, "777"})
	f.addCase(t, database.Case{CreatedAt: at(1), GroupID: &older.ID}, ev{evidence.TypeCryptoWallet, "0xABC"})
	c := f.addCase(t, database.Case{CreatedAt: at(5)},
		ev{evidence.TypeBankAccount, "777"},
		ev{evidence.TypeCryptoWallet, "0xabc"},
	)

	result, err := f.linker.Link(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, older.ID, result.GroupID)
	assert.Equal(t, []string{newer.ID}, result.RetiredGroups)
}

func TestGroupNumberSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypeBankAccount, "1"})
	b := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeBankAccount, "1"})
	f.addCase(t, database.Case{CreatedAt: at(3)}, ev{evidence.TypeBankAccount, "2"})
	d := f.addCase(t, database.Case{CreatedAt: at(4)}, ev{evidence.TypeBankAccount, "2"})

	r1, err := f.linker.Link(ctx, b.ID)
	require.NoError(t, err)
	r2, err := f.linker.Link(ctx, d.ID)
	require.NoError(t, err)

	assert.Equal(t, "G001-20261015", r1.GroupNumber)
	assert.Equal(t, "G002-20261015", r2.GroupNumber)

	f.linker.SetClock(func() time.Time { return today.AddDate(0, 0, 1) })
	f.addCase(t, database.Case{CreatedAt: at(5)}, ev{evidence.TypeBankAccount, "3"})
	e := f.addCase(t, database.Case{CreatedAt: at(6)}, ev{evidence.TypeBankAccount, "3"})
	r3, err := f.linker.Link(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "G001-20261016", r3.GroupNumber)
}

func TestConcurrentLinkingCreatesOneGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 4; i++ {
		c := f.addCase(t, database.Case{CreatedAt: at(i)}, ev{evidence.TypeBankAccount, "999-999"})
		ids = append(ids, c.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.linker.Link(ctx, id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.countGroups(t))

	var distinct int64
	require.NoError(t, f.db.Model(&database.Case{}).Distinct("group_id").Count(&distinct).Error)
	assert.Equal(t, int64(1), distinct)
}

func TestGroupNumberUsesUTCDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 03:00 on Oct 16 in Bangkok is still Oct 15 in UTC
	bangkok := time.FixedZone("ICT", 7*60*60)
	f.linker.SetClock(func() time.Time { return time.Date(2026, 10, 16, 3, 0, 0, 0, bangkok) })

	f.addCase(t, database.Case{CreatedAt: at(1)}, ev{evidence.TypeBankAccount, "555"})
	b := f.addCase(t, database.Case{CreatedAt: at(2)}, ev{evidence.TypeBankAccount, "555"})

	result, err := f.linker.Link(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "G001-20261015", result.GroupNumber)
}

func TestDefaultClockIsUTC(t *testing.T) {
	f := newFixture(t)
	linker := NewLinker(f.db, f.norm, f.agg, nil, logger.NewNop())
	assert.Equal(t, time.UTC, linker.now().Location())
}

func TestParseGroupSeq(t *testing.T) {
	seq, ok := parseGroupSeq("G012-20261015", "20261015")
	assert.True(t, ok)
	assert.Equal(t, 12, seq)

	_, ok = parseGroupSeq("G012-20261014", "20261015")
	assert.False(t, ok)
	_, ok = parseGroupSeq("Gxx-20261015", "20261015")
	assert.False(t, ok)

	assert.Equal(t, "G007-20261015", FormatGroupNumber(7, today))
}
