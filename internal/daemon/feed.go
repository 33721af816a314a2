package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/feed"
	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/store"
	"go.uber.org/zap"
)

// Feed runs the configured change feed driver.
type Feed struct {
	driver   string
	machine  *status.Machine
	listener *feed.PostgresListener
	relay    *feed.RedisRelay
	logger   *zap.Logger
}

func provideFeed(cfg *config.Config, st store.Store, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*Feed, error) {
	logger = logger.Named("feed")
	pub := feed.NewPublisher(b)
	fd := &Feed{driver: cfg.Feed.Driver, machine: machine, logger: logger}

	switch cfg.Feed.Driver {
	case feed.DriverMemory:
		st.SetNotifier(pub)
	case feed.DriverPostgres:
		// The messages trigger notifies; the store itself stays silent.
		fd.listener = feed.NewPostgresListener(cfg.Store.DatabaseURL, pub, machine, logger)
	case feed.DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		relay, err := feed.NewRedisRelay(ctx, cfg.Feed.RedisURL, cfg.Feed.Channel, pub, machine, logger)
		if err != nil {
			return nil, err
		}
		st.SetNotifier(relay)
		fd.relay = relay
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.Feed.Driver)
	}
	logger.Info("change feed configured", zap.String("driver", cfg.Feed.Driver))
	return fd, nil
}

// Start connects the feed. The memory driver is ready immediately; the
// postgres listener reaches READY on its own once LISTEN succeeds.
func (f *Feed) Start(ctx context.Context) error {
	switch {
	case f.listener != nil:
		f.listener.Start(ctx)
	case f.relay != nil:
		if err := f.relay.Start(ctx); err != nil {
			_ = f.machine.Transition(status.Error)
			return err
		}
	default:
		_ = f.machine.Transition(status.Connecting)
		_ = f.machine.Transition(status.Ready)
	}
	return nil
}

// Stop disconnects the feed.
func (f *Feed) Stop() {
	switch {
	case f.listener != nil:
		f.listener.Stop()
	case f.relay != nil:
		if err := f.relay.Stop(); err != nil {
			f.logger.Warn("error closing redis relay", zap.Error(err))
		}
	}
}
