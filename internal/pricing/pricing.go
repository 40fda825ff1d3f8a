// Package pricing computes registration fees. A quote is a pure function of
// the participant category, the instant being priced, and the add-on counts.
package pricing

import (
	"strconv"
	"strings"
	"time"

	dErrors "confreg/pkg/domain-errors"
)

// Tier is a pricing period selected by comparing a date to the deadlines.
type Tier string

const (
	TierEarlyBird Tier = "early_bird"
	TierRegular   Tier = "regular"
	TierOnsite    Tier = "onsite"
)

// Category is the canonical participant category key.
type Category string

const (
	CategoryStudent      Category = "student"
	CategoryAcademic     Category = "academic"
	CategoryIndustry     Category = "industry"
	CategoryAccompanying Category = "accompanying"
	CategoryWorkshopOnly Category = "workshop_only"
)

// DefaultCategory prices any category the table does not recognise. Academic
// is the full delegate rate; falling back to zero would let unknown input
// register for free.
const DefaultCategory = CategoryAcademic

// Rates holds one row of the fee table in whole rupees.
type Rates struct {
	EarlyBird int64
	Regular   int64
	Onsite    int64
}

// For returns the rate for tier.
func (r Rates) For(t Tier) int64 {
	switch t {
	case TierEarlyBird:
		return r.EarlyBird
	case TierRegular:
		return r.Regular
	default:
		return r.Onsite
	}
}

// Table is the fee schedule.
var Table = map[Category]Rates{
	CategoryStudent:      {EarlyBird: 8000, Regular: 10000, Onsite: 12000},
	CategoryAcademic:     {EarlyBird: 10000, Regular: 12000, Onsite: 14000},
	CategoryIndustry:     {EarlyBird: 10000, Regular: 12000, Onsite: 14000},
	CategoryAccompanying: {EarlyBird: 4000, Regular: 5000, Onsite: 7000},
	CategoryWorkshopOnly: {EarlyBird: 2000, Regular: 3000, Onsite: 4000},
}

var labels = map[Category]string{
	CategoryStudent:      "Student (with ID)",
	CategoryAcademic:     "Academic/Researcher",
	CategoryIndustry:     "Industry/Corporate",
	CategoryAccompanying: "Accompanying Person",
	CategoryWorkshopOnly: "Workshop Only (Optional)",
}

// Label returns the display label for c.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory accepts a canonical key, a display label, or free text
// mentioning the category. It reports false when nothing matches.
func ParseCategory(s string) (Category, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "", false
	}
	for c, label := range labels {
		if v == string(c) || v == strings.ToLower(label) {
			return c, true
		}
	}
	switch {
	case strings.Contains(v, "student"):
		return CategoryStudent, true
	case strings.Contains(v, "accompany"):
		return CategoryAccompanying, true
	case strings.Contains(v, "workshop"):
		return CategoryWorkshopOnly, true
	case strings.Contains(v, "industry"), strings.Contains(v, "corporate"):
		return CategoryIndustry, true
	case strings.Contains(v, "academic"), strings.Contains(v, "researcher"), strings.Contains(v, "faculty"):
		return CategoryAcademic, true
	}
	return "", false
}

// Deadlines are inclusive upper bounds of the early-bird and regular tiers.
type Deadlines struct {
	EarlyBird time.Time
	Regular   time.Time
}

// Quote is a fee breakdown. Amounts are whole rupees.
type Quote struct {
	Category         Category
	Tier             Tier
	Base             int64
	AccompanyingRate int64
	WorkshopRate     int64
	Accompanying     int
	Workshop         int
	AddOns           int64
	Total            int64
	// DefaultApplied is set when the requested category was unknown and
	// DefaultCategory was priced instead.
	DefaultApplied bool
}

// TotalMinorUnits returns the total in paise, the unit the gateway expects.
func (q Quote) TotalMinorUnits() int64 {
	return q.Total * 100
}

// Engine prices registrations against a fixed pair of deadlines.
type Engine struct {
	deadlines Deadlines
	table     map[Category]Rates
}

// New returns an engine using the standard fee table.
func New(d Deadlines) *Engine {
	return &Engine{deadlines: d, table: Table}
}

// TierAt selects the tier for now. Both deadlines are inclusive.
func (e *Engine) TierAt(now time.Time) Tier {
	switch {
	case !now.After(e.deadlines.EarlyBird):
		return TierEarlyBird
	case !now.After(e.deadlines.Regular):
		return TierRegular
	default:
		return TierOnsite
	}
}

// Quote prices a registration. Negative add-on counts are rejected.
func (e *Engine) Quote(category string, now time.Time, accompanying, workshop int) (Quote, error) {
	if accompanying < 0 {
		return Quote{}, dErrors.New(dErrors.CodeValidation, "accompanying persons cannot be negative")
	}
	if workshop < 0 {
		return Quote{}, dErrors.New(dErrors.CodeValidation, "workshop participants cannot be negative")
	}

	cat, ok := ParseCategory(category)
	if !ok {
		cat = DefaultCategory
	}
	tier := e.TierAt(now)

	q := Quote{
		Category:         cat,
		Tier:             tier,
		Base:             e.table[cat].For(tier),
		AccompanyingRate: e.table[CategoryAccompanying].For(tier),
		WorkshopRate:     e.table[CategoryWorkshopOnly].For(tier),
		Accompanying:     accompanying,
		Workshop:         workshop,
		DefaultApplied:   !ok,
	}
	q.AddOns = int64(accompanying)*q.AccompanyingRate + int64(workshop)*q.WorkshopRate
	q.Total = q.Base + q.AddOns
	return q, nil
}

// FormatINR renders whole rupees with Indian digit grouping, e.g. ₹1,20,000.
func FormatINR(rupees int64) string {
	sign := ""
	if rupees < 0 {
		sign, rupees = "-", -rupees
	}
	digits := strconv.FormatInt(rupees, 10)
	if len(digits) <= 3 {
		return sign + "₹" + digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return sign + "₹" + strings.Join(groups, ",") + "," + tail
}
