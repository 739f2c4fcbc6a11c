package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ukydev/fleet-dashboard/internal/models"
)

// ListVehicles returns the full vehicle collection.
func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	if _, err := c.do(ctx, http.MethodGet, "/vehicles", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateVehicle submits a new vehicle. The returned record is the stored shape.
func (c *Client) CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	var out models.Vehicle
	ok, err := c.do(ctx, http.MethodPost, "/vehicles", nil, v, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("create vehicle %s: empty response", v.VIN)
	}
	return &out, nil
}

// UpdateVehicle sends a partial update. A nil vehicle with a nil error means the
// service acknowledged without echoing the record.
func (c *Client) UpdateVehicle(ctx context.Context, vin string, patch models.VehiclePatch) (*models.Vehicle, error) {
	var out models.Vehicle
	ok, err := c.do(ctx, http.MethodPatch, "/vehicles/"+url.PathEscape(vin), nil, patch, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// DeleteVehicle removes a vehicle.
func (c *Client) DeleteVehicle(ctx context.Context, vin string) error {
	_, err := c.do(ctx, http.MethodDelete, "/vehicles/"+url.PathEscape(vin), nil, nil, nil)
	return err
}

// Authenticate exchanges credentials for the user profile and, when the service
// issues one, a bearer token.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	req := models.LoginRequest{Username: username, Password: password}
	ok, err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out)
	if err != nil {
		return nil, err
	}
	if !ok || out.User.Username == "" {
		return nil, fmt.Errorf("authenticate %s: %w", username, ErrUnauthorized)
	}
	return &out, nil
}

// ListUsers returns the users visible to requester.
func (c *Client) ListUsers(ctx context.Context, requester string) ([]models.User, error) {
	var out []models.User
	q := url.Values{"requester": {requester}}
	if _, err := c.do(ctx, http.MethodGet, "/users", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterUser creates an account on behalf of admin.
func (c *Client) RegisterUser(ctx context.Context, admin string, draft models.UserDraft, password string) (*models.User, error) {
	var out models.User
	req := models.RegisterRequest{AdminUsername: admin, User: draft, Password: password}
	ok, err := c.do(ctx, http.MethodPost, "/users", nil, req, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Some deployments answer 201 with no body.
		return &models.User{Username: draft.Username, Role: draft.Role, IsSuperUser: draft.IsSuperUser}, nil
	}
	return &out, nil
}

// DeleteUser removes target on behalf of admin.
func (c *Client) DeleteUser(ctx context.Context, admin, target string) error {
	q := url.Values{"admin": {admin}}
	_, err := c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(target), q, nil, nil)
	return err
}

// ListMaintenance returns every maintenance record.
func (c *Client) ListMaintenance(ctx context.Context) ([]models.Maintenance, error) {
	var out []models.Maintenance
	if _, err := c.do(ctx, http.MethodGet, "/maintenance", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMaintenance logs a maintenance record; the service assigns its ID.
func (c *Client) CreateMaintenance(ctx context.Context, m models.Maintenance) (*models.Maintenance, error) {
	var out models.Maintenance
	ok, err := c.do(ctx, http.MethodPost, "/maintenance", nil, m, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("create maintenance: empty response")
	}
	return &out, nil
}

// UpdateMaintenance applies a partial update to a maintenance record.
func (c *Client) UpdateMaintenance(ctx context.Context, id string, patch models.MaintenancePatch) (*models.Maintenance, error) {
	var out models.Maintenance
	ok, err := c.do(ctx, http.MethodPatch, "/maintenance/"+url.PathEscape(id), nil, patch, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// DeleteMaintenance removes a maintenance record.
func (c *Client) DeleteMaintenance(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/maintenance/"+url.PathEscape(id), nil, nil, nil)
	return err
}

// ListTrips returns in-use trip records.
func (c *Client) ListTrips(ctx context.Context) ([]models.InUseRecord, error) {
	var out []models.InUseRecord
	if _, err := c.do(ctx, http.MethodGet, "/in-use", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTrip opens an in-use trip record; the service assigns its ID.
func (c *Client) CreateTrip(ctx context.Context, r models.InUseRecord) (*models.InUseRecord, error) {
	var out models.InUseRecord
	ok, err := c.do(ctx, http.MethodPost, "/in-use", nil, r, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("create trip for %s: empty response", r.VIN)
	}
	return &out, nil
}

// UpdateTrip applies a partial update to a trip record.
func (c *Client) UpdateTrip(ctx context.Context, id string, patch models.TripPatch) (*models.InUseRecord, error) {
	var out models.InUseRecord
	ok, err := c.do(ctx, http.MethodPatch, "/in-use/"+url.PathEscape(id), nil, patch, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}
