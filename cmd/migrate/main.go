package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"booking/internal/app"
	"booking/internal/config"
	"booking/internal/logger"
	"booking/internal/migrate"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|validate")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg := config.Load()
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd": *cmd,
		"db":  cfg.Database.DBName,
	})

	// validate runs against the embedded files only.
	if *cmd == "validate" {
		if err := migrate.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := app.NewDatabase(connectCtx, cfg.Database, nil)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *cmd {
	case "up", "down", "status":
		err = migrate.Run(ctx, db, *cmd)
	case "version":
		if *version == "" {
			err = migrate.Run(ctx, db, "version")
		} else {
			err = migrate.MigrateToVersion(ctx, db, *version)
		}
	default:
		err = fmt.Errorf("unknown command %q", *cmd)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		db.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration complete")
}
