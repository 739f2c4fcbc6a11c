package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehiclePatch_Apply(t *testing.T) {
	v := Vehicle{VIN: "V1", Make: "Toyota", Model: "Corolla", Year: 2022, Mileage: 100, Status: StatusAvailable}

	out := VehiclePatch{Mileage: Ptr(150), Status: Ptr(StatusInMaintenance)}.Apply(v)

	assert.Equal(t, 150, out.Mileage)
	assert.Equal(t, StatusInMaintenance, out.Status)
	assert.Equal(t, "Toyota", out.Make)
	assert.Equal(t, "V1", out.VIN)
	assert.Equal(t, 100, v.Mileage, "input must not be mutated")
}

func TestVehiclePatch_MarshalOnlySetFields(t *testing.T) {
	p := VehiclePatch{
		Status:         Ptr(StatusAvailable),
		AssignedDriver: Ptr(""),
		Extra:          map[string]any{"lastServiced": "2025-01-01", "status": "ignored"},
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 3)
	assert.Equal(t, "Available", raw["status"])
	assert.Equal(t, "", raw["assignedDriver"])
	assert.Equal(t, "2025-01-01", raw["lastServiced"])
}

func TestVehiclePatch_IsEmpty(t *testing.T) {
	assert.True(t, VehiclePatch{}.IsEmpty())
	assert.False(t, VehiclePatch{Extra: map[string]any{"x": 1}}.IsEmpty())
	assert.False(t, VehiclePatch{Year: Ptr(2020)}.IsEmpty())
}

func TestVehiclePatch_ClearExpiryDates(t *testing.T) {
	disc := NewDate(2025, 6, 1)
	insurance := NewDate(2026, 1, 31)
	v := Vehicle{VIN: "V1", DiscExpiryDate: &disc, InsuranceExpiryDate: &insurance}

	p := VehiclePatch{ClearDiscExpiry: true}
	assert.False(t, p.IsEmpty())

	out := p.Apply(v)
	assert.Nil(t, out.DiscExpiryDate)
	require.NotNil(t, out.InsuranceExpiryDate)
	assert.Equal(t, "2026-01-31", out.InsuranceExpiryDate.String())
	require.NotNil(t, v.DiscExpiryDate, "input must not be mutated")

	// Clearing wins over a date in the same patch.
	out = VehiclePatch{InsuranceExpiryDate: &disc, ClearInsuranceExpiry: true}.Apply(v)
	assert.Nil(t, out.InsuranceExpiryDate)

	data, err := json.Marshal(VehiclePatch{ClearDiscExpiry: true, InsuranceExpiryDate: &insurance})
	require.NoError(t, err)
	assert.JSONEq(t, `{"discExpiryDate":null,"insuranceExpiryDate":"2026-01-31"}`, string(data))

	// Decoding the encoded patch onto a stored record removes the date.
	stored := v.Clone()
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Nil(t, stored.DiscExpiryDate)
	require.NotNil(t, stored.InsuranceExpiryDate)
}

func TestVehiclePatch_MergeClearFlags(t *testing.T) {
	d := NewDate(2025, 6, 1)

	merged := VehiclePatch{DiscExpiryDate: &d}.Merge(VehiclePatch{ClearDiscExpiry: true})
	assert.True(t, merged.ClearDiscExpiry)
	assert.Nil(t, merged.DiscExpiryDate)

	merged = VehiclePatch{ClearInsuranceExpiry: true}.Merge(VehiclePatch{InsuranceExpiryDate: &d})
	assert.False(t, merged.ClearInsuranceExpiry)
	require.NotNil(t, merged.InsuranceExpiryDate)
	assert.Equal(t, "2025-06-01", merged.InsuranceExpiryDate.String())
}

func TestStatusChange_Patch(t *testing.T) {
	t.Run("available clears trip fields", func(t *testing.T) {
		p, err := StatusChange{Status: StatusAvailable}.Patch()
		require.NoError(t, err)
		out := p.Apply(Vehicle{VIN: "V1", Status: StatusInUse, AssignedDriver: "bob", CurrentLocation: "A", Destination: "B"})
		assert.Equal(t, StatusAvailable, out.Status)
		assert.Empty(t, out.AssignedDriver)
		assert.Empty(t, out.CurrentLocation)
		assert.Empty(t, out.Destination)
	})

	t.Run("in use sets trip fields", func(t *testing.T) {
		p, err := StatusChange{Status: StatusInUse, Trip: &TripAssignment{Driver: "bob", CurrentLocation: "A", Destination: "B"}}.Patch()
		require.NoError(t, err)
		out := p.Apply(Vehicle{VIN: "V1"})
		assert.Equal(t, "bob", out.AssignedDriver)
		assert.Equal(t, "B", out.Destination)
	})

	t.Run("extra fields merge but cannot override status", func(t *testing.T) {
		p, err := StatusChange{
			Status: StatusAvailable,
			Extra:  VehiclePatch{Mileage: Ptr(900), Status: Ptr(StatusInUse)},
		}.Patch()
		require.NoError(t, err)
		assert.Equal(t, StatusAvailable, *p.Status)
		assert.Equal(t, 900, *p.Mileage)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := StatusChange{Status: "Parked"}.Patch()
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestTripDraft_Validate(t *testing.T) {
	ok := TripDraft{CurrentLocation: "Depot", Destination: "Airport", KmOut: 1200, Driver: "bob"}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.Driver = ""
	assert.ErrorIs(t, missing.Validate(), ErrMissingField)

	zeroKm := ok
	zeroKm.KmOut = 0
	var verr *ValidationError
	require.ErrorAs(t, zeroKm.Validate(), &verr)
	assert.Equal(t, "kmOut", verr.Field)
}

func TestTripPatch_ApplyKeepsPitstopOrder(t *testing.T) {
	r := InUseRecord{ID: "t1", Pitstops: []Pitstop{{Location: "A"}}}
	out := TripPatch{Pitstops: append(r.Pitstops, Pitstop{Location: "B"}, Pitstop{Location: "C"})}.Apply(r)
	require.Len(t, out.Pitstops, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{out.Pitstops[0].Location, out.Pitstops[1].Location, out.Pitstops[2].Location})
	assert.Len(t, r.Pitstops, 1)
	assert.True(t, out.Open())
}
