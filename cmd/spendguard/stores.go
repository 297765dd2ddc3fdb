package main

import (
	"context"
	"fmt"

	"github.com/hed1ad/spendguard/internal/config"
	pkgio "github.com/hed1ad/spendguard/pkg/io"
	"github.com/hed1ad/spendguard/pkg/io/csv"
	"github.com/hed1ad/spendguard/pkg/io/postgres"
	"github.com/hed1ad/spendguard/pkg/store"
)

// openStore returns the configured artifact store and a func releasing it.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "file":
		s, err := store.NewFileStore(cfg.File.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		s, err := store.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "s3":
		s, err := store.DialS3(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openSource(ctx context.Context, cfg config.TrainingConfig) (pkgio.TrainingSource, error) {
	switch cfg.Source {
	case "csv":
		r, err := csv.NewReader(cfg.CSV.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.CSV.Path, err)
		}
		return r, nil
	case "postgres":
		s, err := postgres.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.Limit)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown training source %q", cfg.Source)
	}
}
