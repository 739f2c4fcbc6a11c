// Package remotetest provides an in-memory stand-in for the remote fleet service,
// served over httptest, with per-route failure injection.
package remotetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-dashboard/internal/auth"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

const basePath = "/api"

type storedUser struct {
	user         models.User
	passwordHash string
}

// Server is a fake fleet service. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	// RequireAuth rejects requests without a valid bearer token (login excepted).
	RequireAuth bool

	issuer *auth.Issuer

	mu          sync.Mutex
	vehicles    map[string]models.Vehicle
	users       map[string]storedUser
	maintenance map[string]models.Maintenance
	trips       map[string]models.InUseRecord
	failures    map[string]int
	requests    []string
}

// NewServer starts a fake service. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		issuer:      auth.NewIssuer("remotetest-secret", time.Hour),
		vehicles:    make(map[string]models.Vehicle),
		users:       make(map[string]storedUser),
		maintenance: make(map[string]models.Maintenance),
		trips:       make(map[string]models.InUseRecord),
		failures:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+basePath+"/auth/login", s.login)
	mux.HandleFunc("GET "+basePath+"/vehicles", s.listVehicles)
	mux.HandleFunc("POST "+basePath+"/vehicles", s.createVehicle)
	mux.HandleFunc("PATCH "+basePath+"/vehicles/{vin}", s.updateVehicle)
	mux.HandleFunc("DELETE "+basePath+"/vehicles/{vin}", s.deleteVehicle)
	mux.HandleFunc("GET "+basePath+"/users", s.listUsers)
	mux.HandleFunc("POST "+basePath+"/users", s.registerUser)
	mux.HandleFunc("DELETE "+basePath+"/users/{username}", s.deleteUser)
	mux.HandleFunc("GET "+basePath+"/maintenance", s.listMaintenance)
	mux.HandleFunc("POST "+basePath+"/maintenance", s.createMaintenance)
	mux.HandleFunc("PATCH "+basePath+"/maintenance/{id}", s.updateMaintenance)
	mux.HandleFunc("DELETE "+basePath+"/maintenance/{id}", s.deleteMaintenance)
	mux.HandleFunc("GET "+basePath+"/in-use", s.listTrips)
	mux.HandleFunc("POST "+basePath+"/in-use", s.createTrip)
	mux.HandleFunc("PATCH "+basePath+"/in-use/{id}", s.updateTrip)

	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// BaseURL is the root to hand to remote.New.
func (s *Server) BaseURL() string {
	return s.URL + basePath
}

// AddUser registers an account that can log in with password.
func (s *Server) AddUser(u models.User, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = storedUser{user: u, passwordHash: hash}
}

// SeedVehicles stores vehicles directly, bypassing the API.
func (s *Server) SeedVehicles(vs ...models.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vs {
		s.vehicles[v.VIN] = v.Clone()
	}
}

// SeedTrips stores trip records directly.
func (s *Server) SeedTrips(rs ...models.InUseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rs {
		s.trips[r.ID] = r.Clone()
	}
}

// FailOn makes every request matching method and path (relative to the API root,
// e.g. "/vehicles/V2") answer with code.
func (s *Server) FailOn(method, path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = code
}

// ClearFailures removes all injected failures.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]int)
}

// Requests returns "METHOD /path" for every request received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Vehicle returns the stored vehicle for vin.
func (s *Server) Vehicle(vin string) (models.Vehicle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vin]
	return v, ok
}

// Trip returns the stored trip record.
func (s *Server) Trip(id string) (models.InUseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.trips[id]
	return r, ok
}

// IssueToken signs a token for u with the server's key.
func (s *Server) IssueToken(u models.User) string {
	token, err := s.issuer.GenerateToken(u)
	if err != nil {
		panic(err)
	}
	return token
}

// intercept records requests, applies injected failures, and enforces bearer auth.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, basePath)
		key := r.Method + " " + path

		s.mu.Lock()
		s.requests = append(s.requests, key)
		code, fail := s.failures[key]
		requireAuth := s.RequireAuth
		s.mu.Unlock()

		if fail {
			http.Error(w, http.StatusText(code), code)
			return
		}

		if requireAuth && path != "/auth/login" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			if _, err := s.issuer.ValidateToken(authHeader); err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	stored, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || !auth.CheckPassword(req.Password, stored.passwordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.issuer.GenerateToken(stored.user)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: stored.user})
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createVehicle(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if !decode(w, r, &v) {
		return
	}
	if v.VIN == "" {
		http.Error(w, "vin is required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vehicles[v.VIN]; exists {
		http.Error(w, "Vehicle with this VIN already exists", http.StatusConflict)
		return
	}
	s.vehicles[v.VIN] = v
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) updateVehicle(w http.ResponseWriter, r *http.Request) {
	vin := r.PathValue("vin")
	s.mu.Lock()
	v, ok := s.vehicles[vin]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}
	// Unmarshalling onto the stored record applies only the fields present.
	if !decode(w, r, &v) {
		return
	}
	v.VIN = vin
	s.mu.Lock()
	s.vehicles[vin] = v
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	vin := r.PathValue("vin")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[vin]; !ok {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}
	delete(s.vehicles, vin)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) isAdmin(username string) bool {
	stored, ok := s.users[username]
	return ok && stored.user.IsAdmin()
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requester")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAdmin(requester) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := auth.ValidateUsername(req.User.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !models.IsValidRole(req.User.Role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAdmin(req.AdminUsername) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}
	if _, exists := s.users[req.User.Username]; exists {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}
	u := models.User{Username: req.User.Username, Role: req.User.Role, IsSuperUser: req.User.IsSuperUser}
	s.users[u.Username] = storedUser{user: u, passwordHash: hash}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("username")
	admin := r.URL.Query().Get("admin")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAdmin(admin) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}
	if _, ok := s.users[target]; !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	delete(s.users, target)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMaintenance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Maintenance, 0, len(s.maintenance))
	for _, m := range s.maintenance {
		out = append(out, m)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createMaintenance(w http.ResponseWriter, r *http.Request) {
	var m models.Maintenance
	if !decode(w, r, &m) {
		return
	}
	m.ID = uuid.NewString()
	s.mu.Lock()
	s.maintenance[m.ID] = m
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) updateMaintenance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	m, ok := s.maintenance[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Maintenance record not found", http.StatusNotFound)
		return
	}
	if !decode(w, r, &m) {
		return
	}
	m.ID = id
	s.mu.Lock()
	s.maintenance[id] = m
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) deleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maintenance[id]; !ok {
		http.Error(w, "Maintenance record not found", http.StatusNotFound)
		return
	}
	delete(s.maintenance, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTrips(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.InUseRecord, 0, len(s.trips))
	for _, t := range s.trips {
		out = append(out, t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTrip(w http.ResponseWriter, r *http.Request) {
	var t models.InUseRecord
	if !decode(w, r, &t) {
		return
	}
	t.ID = uuid.NewString()
	if t.StartTime.IsZero() {
		t.StartTime = time.Now().UTC()
	}
	s.mu.Lock()
	s.trips[t.ID] = t
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTrip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	t, ok := s.trips[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Trip not found", http.StatusNotFound)
		return
	}
	if !decode(w, r, &t) {
		return
	}
	t.ID = id
	s.mu.Lock()
	s.trips[id] = t
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, t)
}
