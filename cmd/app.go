package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/config"
	"github.com/sells-group/hotspot/internal/events"
	"github.com/sells-group/hotspot/internal/funnel"
	"github.com/sells-group/hotspot/internal/service"
	"github.com/sells-group/hotspot/internal/snapshot"
	"github.com/sells-group/hotspot/internal/store"
)

// appEnv holds the store, browser, publisher and service shared by the
// serve and page commands.
type appEnv struct {
	Store     store.Store
	Browser   *snapshot.Manager
	Publisher events.Publisher
	Service   *service.Service
}

// Close flushes changed pages, then releases the publisher, browser and
// store.
func (e *appEnv) Close() {
	if e.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := e.Service.Flush(ctx); err != nil {
			zap.L().Error("final flush failed", zap.Error(err))
		}
		cancel()
	}
	if e.Publisher != nil {
		if err := e.Publisher.Close(); err != nil {
			zap.L().Warn("close publisher", zap.Error(err))
		}
	}
	if e.Browser != nil {
		if err := e.Browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp wires the application from cfg. Callers should defer env.Close().
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	defaults, err := c.Page.Model()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	pub, err := initPublisher(c.Events)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	browser := snapshot.NewManager(c.Browser.Manager())
	capturer := snapshot.NewGuarded(
		snapshot.NewRodCapturer(browser,
			snapshot.WithStealth(c.Browser.Stealth),
			snapshot.WithBlockDetection(c.Browser.DetectBlocks),
			snapshot.WithNavigateTimeout(c.Browser.NavigateTimeout()),
		),
		c.Browser.Guard(),
	)

	maxDepth := c.Funnel.MaxDepth
	if maxDepth <= 0 {
		maxDepth = funnel.DefaultMaxDepth
	}
	svc := service.New(st, capturer, pub, service.Options{
		DefaultMaxDepth: maxDepth,
		PageDefaults:    defaults,
		FlushInterval:   c.Store.FlushInterval(),
	})

	return &appEnv{Store: st, Browser: browser, Publisher: pub, Service: svc}, nil
}

// initStore opens the configured page store.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case config.DriverMemory, "":
		return store.NewMemory(), nil
	case config.DriverSQLite:
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "hotspot.db"
		}
		return store.NewSQLite(dsn)
	case config.DriverPostgres:
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	case config.DriverRedis:
		return store.NewRedis(ctx, store.RedisConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initPublisher connects the change event stream, or returns a no-op
// publisher when no broker is configured.
func initPublisher(ec config.EventsConfig) (events.Publisher, error) {
	if ec.RabbitURL == "" {
		return events.Noop{}, nil
	}
	rabbit, err := events.NewRabbitPublisher(ec.RabbitURL, ec.Prefix)
	if err != nil {
		return nil, eris.Wrap(err, "init event publisher")
	}
	zap.L().Info("publishing page events", zap.String("exchange", events.ExchangeName(ec.Prefix)))
	return events.NewAsync(rabbit, ec.Buffer, 5*time.Second), nil
}
