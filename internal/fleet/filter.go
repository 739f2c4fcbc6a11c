package fleet

import (
	"sort"
	"strings"

	"github.com/ukydev/fleet-dashboard/internal/models"
)

// AdvancedFilter holds the optional range and attribute clauses. Nil bounds are open.
type AdvancedFilter struct {
	Make       string // case-insensitive exact match
	Model      string // case-insensitive substring
	YearMin    *int
	YearMax    *int
	MileageMin *int
	MileageMax *int
}

// Filter selects vehicles. Every non-empty clause must hold.
type Filter struct {
	// Query matches make, model or vin as a case-insensitive substring.
	Query    string
	Status   models.VehicleStatus
	Advanced AdvancedFilter
}

// Predicate is one filter clause.
type Predicate func(models.Vehicle) bool

// Clauses returns the active clauses of f. An empty filter has none.
func (f Filter) Clauses() []Predicate {
	var out []Predicate
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		out = append(out, func(v models.Vehicle) bool {
			return strings.Contains(strings.ToLower(v.Make), q) ||
				strings.Contains(strings.ToLower(v.Model), q) ||
				strings.Contains(strings.ToLower(v.VIN), q)
		})
	}
	if f.Status != "" {
		status := f.Status
		out = append(out, func(v models.Vehicle) bool { return v.Status == status })
	}
	a := f.Advanced
	if mk := strings.TrimSpace(a.Make); mk != "" {
		out = append(out, func(v models.Vehicle) bool { return strings.EqualFold(v.Make, mk) })
	}
	if md := strings.ToLower(strings.TrimSpace(a.Model)); md != "" {
		out = append(out, func(v models.Vehicle) bool { return strings.Contains(strings.ToLower(v.Model), md) })
	}
	if a.YearMin != nil {
		lo := *a.YearMin
		out = append(out, func(v models.Vehicle) bool { return v.Year >= lo })
	}
	if a.YearMax != nil {
		hi := *a.YearMax
		out = append(out, func(v models.Vehicle) bool { return v.Year <= hi })
	}
	if a.MileageMin != nil {
		lo := *a.MileageMin
		out = append(out, func(v models.Vehicle) bool { return v.Mileage >= lo })
	}
	if a.MileageMax != nil {
		hi := *a.MileageMax
		out = append(out, func(v models.Vehicle) bool { return v.Mileage <= hi })
	}
	return out
}

// Match reports whether v satisfies every clause.
func (f Filter) Match(v models.Vehicle) bool {
	for _, p := range f.Clauses() {
		if !p(v) {
			return false
		}
	}
	return true
}

// Apply returns the matching vehicles sorted by VIN. vehicles is not modified.
func (f Filter) Apply(vehicles []models.Vehicle) []models.Vehicle {
	clauses := f.Clauses()
	out := make([]models.Vehicle, 0, len(vehicles))
next:
	for _, v := range vehicles {
		for _, p := range clauses {
			if !p(v) {
				continue next
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out
}

// Filter applies f to the current collection.
func (s *Synchronizer) Filter(f Filter) []models.Vehicle {
	return f.Apply(s.Vehicles())
}
