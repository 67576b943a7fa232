package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/fieldalloc/config"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/store"
	"github.com/kilianp07/fieldalloc/infra/geocode"
	"github.com/kilianp07/fieldalloc/infra/postgres"
)

// openRepository returns the Postgres repository when a DSN is configured,
// otherwise an in-memory store seeded from the fixtures file.
func openRepository(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (store.Repository, *sqlx.DB, error) {
	if cfg.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Config)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		log.Infof("repository: postgres")
		return postgres.NewRepository(db), db, nil
	}
	mem := store.NewMemoryStore()
	if cfg.Fixtures != "" {
		fx, err := store.LoadFixtures(cfg.Fixtures)
		if err != nil {
			return nil, nil, fmt.Errorf("fixtures: %w", err)
		}
		if err := fx.Seed(ctx, mem); err != nil {
			return nil, nil, fmt.Errorf("fixtures: %w", err)
		}
		log.Infof("repository: memory, %d bookings and %d engineers from %s", len(fx.Bookings), len(fx.Engineers), cfg.Fixtures)
	} else {
		log.Warnf("repository: memory without fixtures")
	}
	return mem, nil, nil
}

// seedRules writes the configured pricing rules to the repository.
func seedRules(ctx context.Context, repo store.PricingStore, cfg config.PricingConfig) error {
	rules, err := cfg.SeedRules()
	if err != nil {
		return err
	}
	for _, r := range rules {
		if err := repo.SavePricingRule(ctx, r); err != nil {
			return fmt.Errorf("seed rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// newGeocoder builds the postcode client, cached in Redis when reachable.
func newGeocoder(ctx context.Context, cfg *config.Config, log logger.Logger) (geo.Geocoder, *redis.Client) {
	var g geo.Geocoder = geocode.NewClient(cfg.Geocode.Client, log)
	if cfg.Redis.Addr == "" {
		return g, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnf("geocode: redis %s unavailable, cache disabled: %v", cfg.Redis.Addr, err)
		_ = rdb.Close()
		return g, nil
	}
	return geocode.NewRedisCache(rdb, g, cfg.Geocode.Cache, log), rdb
}
