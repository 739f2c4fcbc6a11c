package main

import (
	"context"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/config"
	"github.com/ukydev/fleet-dashboard/internal/fleet"
	"github.com/ukydev/fleet-dashboard/internal/logger"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"github.com/ukydev/fleet-dashboard/internal/notify"
	"github.com/ukydev/fleet-dashboard/internal/remote"
)

// City is a named trip endpoint.
type City struct {
	Name string
	Lat  float64
	Lon  float64
}

// Cities for realistic routes
var cities = []City{
	{"London", 51.5074, -0.1278},
	{"Cardiff", 51.4816, -3.1791},
	{"Birmingham", 52.4862, -1.8904},
	{"Manchester", 53.4808, -2.2426},
	{"Leeds", 53.8008, -1.5491},
	{"Bristol", 51.4545, -2.5879},
	{"Paris", 48.8566, 2.3522},
	{"Madrid", 40.4168, -3.7038},
	{"Berlin", 52.5200, 13.4050},
	{"Istanbul", 41.0082, 28.9784},
}

var (
	makes = map[string][]string{
		"ICE": {"Ford", "Chevrolet", "Toyota", "Honda", "BMW"},
		"EV":  {"Tesla", "Nissan", "Chevrolet", "Ford", "Audi"},
	}
	vehicleModels = map[string][]string{
		"ICE": {"F-150", "Silverado", "Camry", "Civic", "X5"},
		"EV":  {"Model 3", "Leaf", "Bolt", "Mach-E", "e-tron"},
	}
	drivers      = []string{"alice", "bob", "chidi", "dana", "emeka", "farah"}
	serviceTypes = []string{"service", "tyres", "brakes", "inspection"}
)

func haversineKm(a, b City) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

func cityByName(name string) (City, bool) {
	for _, c := range cities {
		if c.Name == name {
			return c, true
		}
	}
	return City{}, false
}

func randomVehicle(rng *rand.Rand) models.VehicleDraft {
	vtype := []string{"ICE", "EV"}[rng.Intn(2)]
	now := time.Now().UTC()
	disc := models.NewDate(now.Year(), now.Month(), now.Day()).AddDate(0, 0, rng.Intn(365))
	insurance := models.NewDate(now.Year(), now.Month(), now.Day()).AddDate(0, 0, rng.Intn(365))
	return models.VehicleDraft{
		VIN:                 "SIM" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:14]),
		Make:                makes[vtype][rng.Intn(len(makes[vtype]))],
		Model:               vehicleModels[vtype][rng.Intn(len(vehicleModels[vtype]))],
		Year:                strconv.Itoa(2020 + rng.Intn(5)), // 2020-2024
		Mileage:             strconv.Itoa(1000 + rng.Intn(80000)),
		Description:         vtype,
		DiscExpiryDate:      &models.Date{Time: disc},
		InsuranceExpiryDate: &models.Date{Time: insurance},
	}
}

// Simulation drives random fleet activity through a signed-in synchronizer.
type Simulation struct {
	sync     *fleet.Synchronizer
	rng      *rand.Rand
	logger   log.FieldLogger
	location map[string]City
	// ServiceChance is the probability an idle vehicle goes in for maintenance.
	ServiceChance float64
}

func NewSimulation(s *fleet.Synchronizer, rng *rand.Rand, logger log.FieldLogger) *Simulation {
	return &Simulation{sync: s, rng: rng, logger: logger, location: make(map[string]City), ServiceChance: 0.1}
}

// Seed adds n random vehicles and returns how many were created.
func (sim *Simulation) Seed(ctx context.Context, n int) int {
	created := 0
	for i := 0; i < n; i++ {
		v, err := sim.sync.Add(ctx, randomVehicle(sim.rng))
		if err != nil {
			sim.logger.WithError(err).Error("Failed to create vehicle")
			continue
		}
		sim.location[v.VIN] = cities[sim.rng.Intn(len(cities))]
		sim.logger.WithFields(log.Fields{
			"vin":   v.VIN,
			"make":  v.Make,
			"model": v.Model,
		}).Info("Created vehicle")
		created++
	}
	return created
}

// Step moves one random vehicle to its next state.
func (sim *Simulation) Step(ctx context.Context) error {
	vs := sim.sync.Vehicles()
	if len(vs) == 0 {
		return nil
	}
	v := vs[sim.rng.Intn(len(vs))]
	switch v.Status {
	case models.StatusAvailable:
		if sim.rng.Float64() < sim.ServiceChance {
			return sim.service(ctx, v)
		}
		return sim.depart(ctx, v)
	case models.StatusInUse:
		return sim.arrive(ctx, v)
	default:
		_, err := sim.sync.ChangeStatus(ctx, v.VIN, models.StatusChange{Status: models.StatusAvailable})
		return err
	}
}

func (sim *Simulation) here(vin string) City {
	c, ok := sim.location[vin]
	if !ok {
		c = cities[sim.rng.Intn(len(cities))]
		sim.location[vin] = c
	}
	return c
}

func (sim *Simulation) depart(ctx context.Context, v models.Vehicle) error {
	from := sim.here(v.VIN)
	to := from
	for to.Name == from.Name {
		to = cities[sim.rng.Intn(len(cities))]
	}
	draft := models.TripDraft{
		CurrentLocation: from.Name,
		Destination:     to.Name,
		KmOut:           max(v.Mileage, 1),
		Driver:          drivers[sim.rng.Intn(len(drivers))],
	}
	rec, err := sim.sync.StartTrip(ctx, v.VIN, draft)
	if err != nil {
		return err
	}
	sim.logger.WithFields(log.Fields{
		"vin":    v.VIN,
		"trip":   rec.ID,
		"from":   from.Name,
		"to":     to.Name,
		"driver": draft.Driver,
	}).Info("Trip started")
	return nil
}

func (sim *Simulation) arrive(ctx context.Context, v models.Vehicle) error {
	trip, ok := sim.sync.OpenTrip(v.VIN)
	if !ok {
		// In use without a trip record; free it.
		_, err := sim.sync.ChangeStatus(ctx, v.VIN, models.StatusChange{Status: models.StatusAvailable})
		return err
	}
	from, fromKnown := cityByName(trip.CurrentLocation)
	to, known := cityByName(trip.Destination)
	km := 1
	if fromKnown && known {
		km = max(int(math.Round(haversineKm(from, to))), 1)
	}
	if _, err := sim.sync.EndTrip(ctx, v.VIN, trip.KmOut+km); err != nil {
		return err
	}
	if known {
		sim.location[v.VIN] = to
	}
	sim.logger.WithFields(log.Fields{"vin": v.VIN, "trip": trip.ID, "km": km}).Info("Trip ended")
	return nil
}

func (sim *Simulation) service(ctx context.Context, v models.Vehicle) error {
	rec := models.Maintenance{
		VIN:         v.VIN,
		ServiceType: serviceTypes[sim.rng.Intn(len(serviceTypes))],
		Mileage:     v.Mileage,
		Cost:        math.Round((50+sim.rng.Float64()*450)*100) / 100,
		Status:      "in_progress",
	}
	created, err := sim.sync.LogMaintenance(ctx, rec, true)
	if err != nil {
		return err
	}
	sim.logger.WithFields(log.Fields{"vin": v.VIN, "service_type": created.ServiceType}).Info("Vehicle in maintenance")
	return nil
}

// notificationLogger echoes notifications into the process log.
type notificationLogger struct {
	logger log.FieldLogger
}

func (n notificationLogger) Forward(note models.Notification) error {
	n.logger.WithField("type", note.Type).Debug(note.Message)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	lg := logger.New(cfg.Log.Level, cfg.Log.Format)

	fleetSize := 10
	if val := os.Getenv("FLEET_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			fleetSize = n
		}
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	lg.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    cfg.API.BaseURL,
		"interval":   interval,
	}).Info("Starting fleet simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	queueOpts := []notify.Option{notify.WithLogger(lg), notify.WithForwarder(notificationLogger{logger: lg})}
	if cfg.MQTT.BrokerURL != "" {
		fwd, err := notify.ConnectMQTT(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID+"-sim", cfg.MQTT.Topic)
		if err != nil {
			lg.WithError(err).Warn("MQTT forwarding disabled")
		} else {
			defer fwd.Close()
			queueOpts = append(queueOpts, notify.WithForwarder(fwd))
		}
	}
	queue := notify.NewQueue(queueOpts...)
	defer queue.Close()

	clientOpts := []remote.Option{remote.WithTimeout(cfg.API.Timeout), remote.WithLogger(lg)}
	if cfg.API.RateLimit > 0 {
		clientOpts = append(clientOpts, remote.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	}
	s := fleet.New(remote.New(cfg.API.BaseURL, clientOpts...),
		fleet.WithNotifier(queue),
		fleet.WithLogger(lg),
		fleet.WithBulkConcurrency(cfg.Fleet.BulkConcurrency),
	)

	if _, err := s.Login(ctx, cfg.Credentials.Username, cfg.Credentials.Password); err != nil {
		lg.WithError(err).Error("Login failed. Ensure FLEET_USERNAME and FLEET_PASSWORD belong to an admin. Exiting.")
		return
	}

	sim := NewSimulation(s, rand.New(rand.NewSource(time.Now().UnixNano())), lg)
	created := sim.Seed(ctx, fleetSize)
	lg.WithField("created_vehicles", created).Info("Vehicle creation completed")
	if created == 0 && len(s.Vehicles()) == 0 {
		lg.Error("No vehicles to simulate. Exiting.")
		return
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()
	lg.Info("Fleet activity simulation started")
	for {
		select {
		case <-ctx.Done():
			lg.WithField("reason", ctx.Err()).Info("Simulation stopped")
			return
		case <-tick.C:
			if err := sim.Step(ctx); err != nil {
				lg.WithError(err).Warn("Simulation step failed")
			}
		}
	}
}
