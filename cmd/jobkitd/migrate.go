package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the storage backend (schema, indexes) and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context())
		},
	}
}

func migrate(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	log := logger.New(logger.FromConfig(s.log)...)

	be, err := openBackend(ctx, s.app.Storage, log)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", s.app.Storage, err)
	}
	defer func() {
		if err := be.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("failed to close storage", logger.Error(err))
		}
	}()

	if err := be.jobs.Setup(ctx); err != nil {
		return fmt.Errorf("setup %s storage: %w", s.app.Storage, err)
	}
	log.InfoContext(ctx, "storage ready", slog.String("storage", s.app.Storage))
	return nil
}
