package fleet

import (
	"math"
	"sort"
	"time"

	"github.com/ukydev/fleet-dashboard/internal/models"
)

// Stats summarises a vehicle collection.
type Stats struct {
	Total          int
	ByStatus       map[models.VehicleStatus]int
	AverageMileage int
	// Rates are whole percentages in [0, 100].
	UtilizationRate  int
	AvailabilityRate int
}

// ComputeStats counts every known status (zero included) and derives the rates.
// An empty collection yields zero rates.
func ComputeStats(vehicles []models.Vehicle) Stats {
	st := Stats{Total: len(vehicles), ByStatus: make(map[models.VehicleStatus]int)}
	for _, status := range models.KnownStatuses() {
		st.ByStatus[status] = 0
	}
	if len(vehicles) == 0 {
		return st
	}

	var mileage int
	for _, v := range vehicles {
		if _, known := st.ByStatus[v.Status]; known {
			st.ByStatus[v.Status]++
		}
		mileage += v.Mileage
	}
	total := float64(len(vehicles))
	st.AverageMileage = int(math.Round(float64(mileage) / total))
	st.UtilizationRate = percent(st.ByStatus[models.StatusInUse], len(vehicles))
	st.AvailabilityRate = percent(st.ByStatus[models.StatusAvailable], len(vehicles))
	return st
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}

// Stats computes statistics over the current collection.
func (s *Synchronizer) Stats() Stats {
	return ComputeStats(s.Vehicles())
}

// Document names a dated vehicle document.
type Document string

const (
	DocumentDisc      Document = "disc"
	DocumentInsurance Document = "insurance"
)

// DocumentExpiry is a disc or insurance date that has passed or is about to.
type DocumentExpiry struct {
	VIN      string
	Document Document
	Date     models.Date
	Expired  bool
}

// ExpiringDocuments lists documents expiring on or before now+window, oldest first.
func ExpiringDocuments(vehicles []models.Vehicle, now time.Time, window time.Duration) []DocumentExpiry {
	today := models.NewDate(now.Year(), now.Month(), now.Day())
	limit := today.Add(window)

	var out []DocumentExpiry
	add := func(vin string, doc Document, d *models.Date) {
		if d == nil || d.IsZero() || d.After(limit) {
			return
		}
		out = append(out, DocumentExpiry{VIN: vin, Document: doc, Date: *d, Expired: d.Before(today.Time)})
	}
	for _, v := range vehicles {
		add(v.VIN, DocumentDisc, v.DiscExpiryDate)
		add(v.VIN, DocumentInsurance, v.InsuranceExpiryDate)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		if out[i].VIN != out[j].VIN {
			return out[i].VIN < out[j].VIN
		}
		return out[i].Document < out[j].Document
	})
	return out
}

// ExpiringDocuments applies ExpiringDocuments to the current collection.
func (s *Synchronizer) ExpiringDocuments(window time.Duration) []DocumentExpiry {
	return ExpiringDocuments(s.Vehicles(), s.now(), window)
}
