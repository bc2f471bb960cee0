package main

import (
	"context"
	"fmt"
	"time"

	"meteorite-explorer/internal/cache"
	"meteorite-explorer/internal/config"
	"meteorite-explorer/internal/events"
	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/internal/storage/sqlstore"
)

const memoryBusBuffer = 64

func openStore(ctx context.Context, cfg config.StorageConfig) (meteorite.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return meteorite.NewMemoryStore(), nil
	case sqlstore.DriverMySQL, sqlstore.DriverSQLite:
		store, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Driver {
	case "none":
		return cache.Nop{}, nil
	case "", "memory":
		return cache.NewMemory(), nil
	case "redis":
		c, err := cache.NewRedis(ctx, cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func openBus(cfg config.EventsConfig) (events.Bus, error) {
	switch cfg.Driver {
	case "", "none":
		return events.Nop{}, nil
	case "memory":
		return events.NewMemoryBus(memoryBusBuffer), nil
	case "rabbitmq":
		bus, err := events.NewRabbitMQBus(events.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Durable:  cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// components is everything a command needs to talk to the dataset.
type components struct {
	service *meteorite.Service
	bus     events.Bus
}

// openComponents builds the service from cfg. Closing the service releases
// the store, the cache and the bus.
func openComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	c, err := openCache(ctx, cfg.Cache)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	bus, err := openBus(cfg.Events)
	if err != nil {
		_ = store.Close()
		_ = c.Close()
		return nil, err
	}
	service := meteorite.NewService(store,
		meteorite.WithCache(c, cfg.Cache.TTL()),
		meteorite.WithPublisher(bus),
		meteorite.WithPageLimits(meteorite.PageLimits{
			DefaultSize: cfg.API.DefaultPageSize,
			MaxSize:     cfg.API.MaxPageSize,
		}),
	)
	return &components{service: service, bus: bus}, nil
}
