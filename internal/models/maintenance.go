package models

// Maintenance represents a vehicle maintenance record. ID is assigned by the remote service.
type Maintenance struct {
	ID          string  `json:"id"`
	VIN         string  `json:"vin"`
	ServiceType string  `json:"serviceType"` // "service", "tyres", "brakes", "inspection", ...
	Description string  `json:"description,omitempty"`
	ServiceDate Date    `json:"serviceDate"`
	Mileage     int     `json:"mileage"` // odometer reading in km
	Cost        float64 `json:"cost"`
	Technician  string  `json:"technician,omitempty"`
	Status      string  `json:"status,omitempty"` // "scheduled", "in_progress", "completed"
	Notes       string  `json:"notes,omitempty"`
}

// MaintenancePatch is a partial maintenance update.
type MaintenancePatch struct {
	ServiceType *string  `json:"serviceType,omitempty"`
	Description *string  `json:"description,omitempty"`
	ServiceDate *Date    `json:"serviceDate,omitempty"`
	Mileage     *int     `json:"mileage,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	Technician  *string  `json:"technician,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// Apply returns a copy of m with the patch applied.
func (p MaintenancePatch) Apply(m Maintenance) Maintenance {
	if p.ServiceType != nil {
		m.ServiceType = *p.ServiceType
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.ServiceDate != nil {
		m.ServiceDate = *p.ServiceDate
	}
	if p.Mileage != nil {
		m.Mileage = *p.Mileage
	}
	if p.Cost != nil {
		m.Cost = *p.Cost
	}
	if p.Technician != nil {
		m.Technician = *p.Technician
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	return m
}
