package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/audit"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/bridge"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/starlink-mqtt-bridge/migrations"
)

// runTopics prints the topics the bridge publishes and subscribes to, one
// per line.
func runTopics(args []string, stdout io.Writer) error {
	flags := newOverrides("topics", false)
	if err := flags.parse(args); err != nil {
		return err
	}
	cfg, _, err := flags.load()
	if err != nil {
		return err
	}

	topics := bridge.NewTopics(cfg.TopicPrefix())
	list := topics.List(field.NewFilter(cfg.Poll.Fields...))
	_, err = fmt.Fprintln(stdout, strings.Join(list, "\n"))
	return err
}

// runAudit prints a page of the command audit log as JSON.
func runAudit(ctx context.Context, args []string, stdout io.Writer) error {
	flags := newOverrides("audit", false)
	var (
		failed      bool
		limit       int
		offset      int
		migrateDown bool
	)
	flags.fs.BoolVar(&failed, "failed", false, "only show failed commands")
	flags.fs.IntVar(&limit, "limit", 0, "page size (default 50, max 200)")
	flags.fs.IntVar(&offset, "offset", 0, "page offset")
	flags.fs.BoolVar(&migrateDown, "migrate-down", false, "roll back the latest audit schema migration and exit")
	if err := flags.parse(args); err != nil {
		return err
	}
	cfg, _, err := flags.load()
	if err != nil {
		return err
	}

	if migrateDown {
		return rollbackAudit(ctx, cfg.Audit, stdout)
	}

	db, err := openAudit(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Read-only use
	repo := audit.NewSQLiteRepository(db.DB)

	filter := audit.Filter{Limit: limit, Offset: offset}
	if paths := field.NewFilter(flags.fields...).Paths(); len(paths) > 0 {
		filter.Field = paths[0]
	}
	flags.fs.Visit(func(f *flag.Flag) {
		if f.Name == "failed" {
			success := !failed
			filter.Success = &success
		}
	})

	res, err := repo.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing commands: %w", err)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

// rollbackAudit reverts the most recent audit migration and reports which
// version it removed.
func rollbackAudit(ctx context.Context, cfg config.AuditConfig, stdout io.Writer) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Changes are committed by MigrateDown

	applied, _, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(applied) == 0 {
		_, err = fmt.Fprintln(stdout, "no audit migrations to roll back")
		return err
	}

	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "rolled back audit migration %s\n", applied[len(applied)-1].Version)
	return err
}
