package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/config"
	"github.com/ukydev/fleet-dashboard/internal/db"
	"github.com/ukydev/fleet-dashboard/internal/fleet"
	"github.com/ukydev/fleet-dashboard/internal/logger"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"github.com/ukydev/fleet-dashboard/internal/notify"
	"github.com/ukydev/fleet-dashboard/internal/remote"
	"github.com/ukydev/fleet-dashboard/internal/session"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	lg := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, cleanup, err := newApp(ctx, cfg, lg, os.Stdout)
	if err != nil {
		lg.WithError(err).Error("Failed to start")
		return 1
	}
	defer cleanup()

	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// printer writes every notification to the terminal as it is raised. The queue
// only keeps the newest few, so reading it after a bulk command would drop some.
type printer struct {
	out io.Writer
}

func (p printer) Forward(n models.Notification) error {
	_, err := fmt.Fprintf(p.out, "[%s] %s\n", n.Type, n.Message)
	return err
}

// newApp wires the process from configuration. The returned cleanup releases the
// broker and database connections.
func newApp(ctx context.Context, cfg *config.Config, lg *log.Logger, out io.Writer) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	clientOpts := []remote.Option{remote.WithTimeout(cfg.API.Timeout), remote.WithLogger(lg)}
	if cfg.API.RateLimit > 0 {
		clientOpts = append(clientOpts, remote.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	}
	client := remote.New(cfg.API.BaseURL, clientOpts...)

	queueOpts := []notify.Option{
		notify.WithTTL(cfg.Notify.TTL),
		notify.WithMax(cfg.Notify.Max),
		notify.WithLogger(lg),
		notify.WithForwarder(printer{out: out}),
	}
	if cfg.MQTT.BrokerURL != "" {
		fwd, err := notify.ConnectMQTT(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			// Forwarding is best effort; the CLI still works without a broker.
			lg.WithError(err).WithField("broker", cfg.MQTT.BrokerURL).Warn("MQTT forwarding disabled")
		} else {
			queueOpts = append(queueOpts, notify.WithForwarder(fwd))
			closers = append(closers, fwd.Close)
		}
	}
	queue := notify.NewQueue(queueOpts...)
	closers = append(closers, queue.Close)

	store, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeStore)

	syncer := fleet.New(client,
		fleet.WithNotifier(queue),
		fleet.WithSessionStore(store),
		fleet.WithLogger(lg),
		fleet.WithAdminCap(cfg.Fleet.AdminCap),
		fleet.WithBulkConcurrency(cfg.Fleet.BulkConcurrency),
	)

	return &app{sync: syncer, out: out, creds: cfg.Credentials}, cleanup, nil
}

func openSessionStore(ctx context.Context, cfg *config.Config) (fleet.SessionStore, func(), error) {
	switch cfg.Session.Backend {
	case "mongo":
		client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		return db.NewMongoSessionStore(client.Database(cfg.Mongo.Database)), disconnect, nil
	default:
		return session.NewFileStore(cfg.Session.Dir), func() {}, nil
	}
}
