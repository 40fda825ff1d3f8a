package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "confreg/pkg/domain-errors"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func testEngine() *Engine {
	return New(Deadlines{
		EarlyBird: time.Date(2026, 1, 31, 23, 59, 59, 0, ist),
		Regular:   time.Date(2026, 2, 20, 23, 59, 59, 0, ist),
	})
}

func TestTierAt(t *testing.T) {
	e := testEngine()
	tests := []struct {
		name string
		at   time.Time
		want Tier
	}{
		{"well before early bird", time.Date(2025, 10, 1, 0, 0, 0, 0, ist), TierEarlyBird},
		{"exactly at early bird deadline", time.Date(2026, 1, 31, 23, 59, 59, 0, ist), TierEarlyBird},
		{"one second after early bird", time.Date(2026, 2, 1, 0, 0, 0, 0, ist), TierRegular},
		{"same instant in UTC", time.Date(2026, 1, 31, 18, 29, 59, 0, time.UTC), TierEarlyBird},
		{"exactly at regular deadline", time.Date(2026, 2, 20, 23, 59, 59, 0, ist), TierRegular},
		{"after regular deadline", time.Date(2026, 2, 21, 0, 0, 0, 0, ist), TierOnsite},
		{"conference week", time.Date(2026, 3, 5, 9, 0, 0, 0, ist), TierOnsite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.TierAt(tt.at))
		})
	}
}

func TestQuote_TotalsAcrossTable(t *testing.T) {
	e := testEngine()
	dates := []time.Time{
		time.Date(2026, 1, 15, 0, 0, 0, 0, ist),
		time.Date(2026, 2, 10, 0, 0, 0, 0, ist),
		time.Date(2026, 3, 1, 0, 0, 0, 0, ist),
	}
	for cat, rates := range Table {
		for _, d := range dates {
			for acc := 0; acc <= 3; acc++ {
				for ws := 0; ws <= 2; ws++ {
					q, err := e.Quote(string(cat), d, acc, ws)
					require.NoError(t, err)
					tier := e.TierAt(d)
					assert.Equal(t, tier, q.Tier)
					assert.Equal(t, rates.For(tier), q.Base)
					want := q.Base + int64(acc)*Table[CategoryAccompanying].For(tier) + int64(ws)*Table[CategoryWorkshopOnly].For(tier)
					assert.Equal(t, want, q.Total, "%s acc=%d ws=%d", cat, acc, ws)
					assert.Equal(t, q.Base+q.AddOns, q.Total)
				}
			}
		}
	}
}

func TestQuote_StudentEarlyBirdWithCompanion(t *testing.T) {
	q, err := testEngine().Quote("Student (with ID)", time.Date(2026, 1, 10, 12, 0, 0, 0, ist), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, CategoryStudent, q.Category)
	assert.Equal(t, TierEarlyBird, q.Tier)
	assert.Equal(t, int64(8000), q.Base)
	assert.Equal(t, int64(4000), q.AddOns)
	assert.Equal(t, int64(12000), q.Total)
	assert.Equal(t, int64(1200000), q.TotalMinorUnits())
	assert.False(t, q.DefaultApplied)
}

func TestQuote_RejectsNegativeCounts(t *testing.T) {
	e := testEngine()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, ist)

	_, err := e.Quote("student", now, -1, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = e.Quote("student", now, 0, -2)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestQuote_UnknownCategoryUsesDefaultRow(t *testing.T) {
	q, err := testEngine().Quote("Visiting Dignitary", time.Date(2026, 2, 10, 0, 0, 0, 0, ist), 0, 0)
	require.NoError(t, err)
	assert.True(t, q.DefaultApplied)
	assert.Equal(t, DefaultCategory, q.Category)
	assert.Equal(t, Table[DefaultCategory].Regular, q.Total)
	assert.NotZero(t, q.Total)
}

func TestQuote_Deterministic(t *testing.T) {
	e := testEngine()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, ist)
	first, err := e.Quote("industry", now, 2, 1)
	require.NoError(t, err)
	for range 10 {
		again, err := e.Quote("industry", now, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"Student (with ID)", CategoryStudent, true},
		{"student", CategoryStudent, true},
		{"Academic/Researcher", CategoryAcademic, true},
		{"Faculty", CategoryAcademic, true},
		{"industry/corporate", CategoryIndustry, true},
		{"Corporate delegate", CategoryIndustry, true},
		{"Accompanying Person", CategoryAccompanying, true},
		{"Workshop Only (Optional)", CategoryWorkshopOnly, true},
		{"workshop_only", CategoryWorkshopOnly, true},
		{"", "", false},
		{"speaker", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatINR(t *testing.T) {
	assert.Equal(t, "₹800", FormatINR(800))
	assert.Equal(t, "₹8,000", FormatINR(8000))
	assert.Equal(t, "₹12,000", FormatINR(12000))
	assert.Equal(t, "₹1,20,000", FormatINR(120000))
	assert.Equal(t, "₹12,34,56,789", FormatINR(123456789))
}
