package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"greendrake/realty/internal/cache"
	"greendrake/realty/internal/config"
	"greendrake/realty/internal/db"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/services"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/store/memstore"
	"greendrake/realty/internal/store/mongostore"
)

// app owns the long-lived resources shared by the commands.
type app struct {
	cfg      *config.Config
	store    store.Store
	rdb      *redis.Client
	notifier *notify.Notifier

	// Inbound commands arrive through an external transport that embeds these services;
	// this process only drives the expiry sweep itself.
	properties services.IPropertyService
	inquiries  services.IInquiryService
	calendar   services.ICalendarService
	expiry     services.IExpiryService
}

// newApp connects the store and Redis and builds the services. An empty REDIS_ADDR disables
// Redis; requireRedis turns that into an error for commands that cannot work without it.
func newApp(ctx context.Context, cfg *config.Config, requireRedis bool) (*app, error) {
	a := &app{cfg: cfg}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st

	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg)
		if err != nil {
			if requireRedis {
				a.close(ctx)
				return nil, err
			}
			log.Printf("WARNING: %v. Notifications will only be logged.", err)
		} else {
			a.rdb = rdb
		}
	} else if requireRedis {
		a.close(ctx)
		return nil, fmt.Errorf("REDIS_ADDR is required for run mode %q", cfg.RunMode)
	}

	a.notifier = notify.NewNotifier(buildSink(cfg, a.rdb))

	a.properties = services.NewPropertyService(a.store, cfg, a.notifier)
	a.inquiries = services.NewInquiryService(a.store, cfg, a.notifier)
	a.calendar = services.NewCalendarService(a.store, cfg, a.notifier)
	a.expiry = services.NewExpiryService(a.store, cfg, a.notifier)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		log.Println("Using in-memory store. Data is lost on exit.")
		return memstore.New(cfg.TxMaxRetries), nil
	case config.StoreBackendMongo:
		client, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st := mongostore.New(client, database, cfg.TxMaxRetries)
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("failed to ensure indexes: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

// buildSink assembles notification delivery. With MOCK_SERVICES the latest event per room is
// kept in Redis for the service API; LOG_NOTIFICATIONS adds a JSON-lines file.
func buildSink(cfg *config.Config, rdb *redis.Client) notify.Sink {
	composite := notify.NewCompositeSink()
	switch {
	case rdb == nil:
		log.Println("Redis unavailable: using logging notification sink.")
		composite.AddSink(notify.LoggingSink{})
	case cfg.MockServices:
		log.Println("MOCK_SERVICES enabled: storing notifications in Redis.")
		composite.AddSink(notify.NewRedisMockSink(rdb))
		composite.AddSink(notify.LoggingSink{})
	default:
		log.Printf("Publishing notifications on Redis channels %s:*", cfg.NotifyChannelPrefix)
		composite.AddSink(notify.NewRedisSink(rdb, cfg.NotifyChannelPrefix))
	}

	if cfg.LogNotifications != "" {
		fileSink, err := notify.NewFileSink(cfg.LogNotifications)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file notification sink (LOG_NOTIFICATIONS='%s'): %v. Proceeding without file logging.", cfg.LogNotifications, err)
		} else {
			composite.AddSink(fileSink)
			log.Printf("LOG_NOTIFICATIONS set to '%s', file notification sink added.", cfg.LogNotifications)
		}
	}
	return composite
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			log.Printf("Error closing notification sinks: %v", err)
		}
	}
	if a.rdb != nil {
		if err := cache.DisconnectRedis(a.rdb); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}
}
