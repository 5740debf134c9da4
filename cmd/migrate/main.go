// Package main applies or inspects the database migrations.
//
//	crm-migrate -cmd up
//	crm-migrate -cmd down
//	crm-migrate -cmd validate
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"crm/pkg/config"
	"crm/pkg/logger"
	"crm/pkg/migrate"
)

func main() {
	command := flag.String("cmd", "up", "goose command: up, down, status, version, redo, validate")
	flag.Parse()

	_ = godotenv.Load()
	log, err := logger.New(logger.Config{Level: "info", Development: true, Service: "crm-migrate"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	ctx := logger.WithLogger(context.Background(), log)

	// validate needs no database.
	if *command == "validate" {
		if err := migrate.Embedded(); err != nil {
			log.Fatalw("migrations are invalid", "error", err)
		}
		log.Info("migrations are valid")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("config", "error", err)
	}
	db, err := migrate.Open(cfg.DB.DSN)
	if err != nil {
		log.Fatalw("open database", "error", err)
	}
	defer db.Close()

	if err := migrate.Run(ctx, db, *command, flag.Args()...); err != nil {
		log.Fatalw("migration failed", "command", *command, "error", err)
	}
	log.Infow("migration finished", "command", *command)
}
