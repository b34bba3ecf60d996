package main

import (
	"context"

	"github.com/ericfisherdev/releasewatch/internal/config"
)

func runMigrate(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	return db.Close()
}
