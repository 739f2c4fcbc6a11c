package fleet

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

func TestComputeStats(t *testing.T) {
	t.Run("empty collection", func(t *testing.T) {
		st := ComputeStats(nil)
		assert.Zero(t, st.Total)
		assert.Zero(t, st.AverageMileage)
		assert.Zero(t, st.UtilizationRate)
		assert.Zero(t, st.AvailabilityRate)
		for _, status := range models.KnownStatuses() {
			count, ok := st.ByStatus[status]
			assert.True(t, ok, "every known status is present")
			assert.Zero(t, count)
		}
	})

	t.Run("sample fleet", func(t *testing.T) {
		st := ComputeStats(sampleFleet())
		assert.Equal(t, 5, st.Total)
		assert.Equal(t, 2, st.ByStatus[models.StatusAvailable])
		assert.Equal(t, 2, st.ByStatus[models.StatusInUse])
		assert.Equal(t, 1, st.ByStatus[models.StatusInMaintenance])
		assert.Equal(t, 83000, st.AverageMileage)
		assert.Equal(t, 40, st.UtilizationRate)
		assert.Equal(t, 40, st.AvailabilityRate)
	})

	t.Run("rates round to nearest percent", func(t *testing.T) {
		vs := []models.Vehicle{
			{VIN: "A", Status: models.StatusInUse},
			{VIN: "B", Status: models.StatusInUse},
			{VIN: "C", Status: models.StatusAvailable},
		}
		st := ComputeStats(vs)
		assert.Equal(t, 67, st.UtilizationRate)
		assert.Equal(t, 33, st.AvailabilityRate)
	})

	t.Run("unknown statuses count toward the total only", func(t *testing.T) {
		st := ComputeStats([]models.Vehicle{{VIN: "A", Status: "Sold"}, {VIN: "B", Status: models.StatusAvailable}})
		assert.Equal(t, 2, st.Total)
		assert.Len(t, st.ByStatus, 3)
		assert.Equal(t, 50, st.AvailabilityRate)
	})

	t.Run("rates stay within bounds", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		statuses := append(models.KnownStatuses(), "Other")
		for i := 0; i < 200; i++ {
			n := rng.Intn(30)
			vs := make([]models.Vehicle, n)
			for j := range vs {
				vs[j] = models.Vehicle{Status: statuses[rng.Intn(len(statuses))], Mileage: rng.Intn(300000)}
			}
			st := ComputeStats(vs)
			assert.GreaterOrEqual(t, st.UtilizationRate, 0)
			assert.LessOrEqual(t, st.UtilizationRate, 100)
			assert.GreaterOrEqual(t, st.AvailabilityRate, 0)
			assert.LessOrEqual(t, st.AvailabilityRate, 100)
		}
	})
}

func TestExpiringDocuments(t *testing.T) {
	now := time.Date(2025, time.June, 1, 15, 30, 0, 0, time.UTC)
	d := func(y int, m time.Month, day int) *models.Date {
		date := models.NewDate(y, m, day)
		return &date
	}
	vs := []models.Vehicle{
		{VIN: "A", DiscExpiryDate: d(2025, time.May, 20), InsuranceExpiryDate: d(2026, time.January, 1)},
		{VIN: "B", DiscExpiryDate: d(2025, time.June, 1), InsuranceExpiryDate: d(2025, time.June, 20)},
		{VIN: "C", DiscExpiryDate: d(2025, time.July, 2)},
		{VIN: "D"},
	}

	got := ExpiringDocuments(vs, now, 30*24*time.Hour)
	require.Len(t, got, 3)

	assert.Equal(t, DocumentExpiry{VIN: "A", Document: DocumentDisc, Date: *d(2025, time.May, 20), Expired: true}, got[0])
	assert.Equal(t, "B", got[1].VIN)
	assert.Equal(t, DocumentDisc, got[1].Document)
	assert.False(t, got[1].Expired, "expiring today is not yet expired")
	assert.Equal(t, DocumentInsurance, got[2].Document)

	assert.Empty(t, ExpiringDocuments(nil, now, time.Hour))
}

func TestSynchronizer_Stats(t *testing.T) {
	s, _, _ := newSynchronizer(t, driverUser, nil, sampleFleet()...)
	st := s.Stats()
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 40, st.UtilizationRate)
}
