// Package main seeds the directory tables with the users, clients and
// products a fresh installation needs, and prints development tokens.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/core/types"
	"crm/internal/domain/auth"
	"crm/internal/infrastructure/storage/postgres"
	"crm/pkg/config"
	"crm/pkg/logger"
)

type userSeed struct {
	email string
	role  security.Role
}

type productSeed struct {
	sku, name, unit string
	stock, minStock int64
	price           string
}

var demoUsers = []userSeed{
	{"manager@crm.local", security.RoleManager},
	{"warehouse@crm.local", security.RoleWarehouseManager},
	{"finance@crm.local", security.RoleAccountant},
}

var demoProducts = []productSeed{
	{"CEM-500", "Cement M500, 50 kg", "bag", 400, 50, "7.50"},
	{"REB-12", "Rebar 12 mm, 6 m", "pcs", 1200, 200, "4.20"},
	{"BRK-RED", "Red brick", "pcs", 15000, 2000, "0.35"},
}

func main() {
	demo := flag.Bool("demo", false, "also seed demo users, a client and products")
	adminEmail := flag.String("admin", "admin@crm.local", "email of the admin user")
	flag.Parse()

	_ = godotenv.Load()
	log, err := logger.New(logger.Config{Level: "info", Development: true, Service: "crm-seed"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("config", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)
	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFromDB(cfg.DB, "crm-seed"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	users := []userSeed{{*adminEmail, security.RoleAdmin}}
	if *demo {
		users = append(users, demoUsers...)
	}

	jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtCfg.Issuer = cfg.JWT.Issuer
	jwtSvc := auth.NewJWTService(jwtCfg)

	for _, u := range users {
		userID, err := seedUser(ctx, pool, u)
		if err != nil {
			log.Fatalw("failed to seed user", "email", u.email, "error", err)
		}
		if !cfg.App.IsDev() {
			continue
		}
		token, expires, err := jwtSvc.GenerateAccessToken(appctx.UserContext{
			UserID: userID.String(),
			Email:  u.email,
			Role:   string(u.role),
		})
		if err != nil {
			log.Fatalw("failed to sign token", "error", err)
		}
		log.Infow("development token", "email", u.email, "role", u.role, "expires", expires, "token", token)
	}

	if *demo {
		if err := seedDemoData(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}
	log.Info("seeding completed successfully")
}

// seedUser inserts u or returns the id of the existing user with its email.
func seedUser(ctx context.Context, pool *postgres.Pool, u userSeed) (id.ID, error) {
	var userID id.ID
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, email, role, is_active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role, is_active = true
		RETURNING id
	`, id.New(), u.email, string(u.role)).Scan(&userID)
	if err != nil {
		return id.Nil(), fmt.Errorf("upsert user %s: %w", u.email, err)
	}
	return userID, nil
}

func seedDemoData(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	log.Info("seeding demo data...")

	clientID := id.New()
	err := pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO clients (id, name, is_active)
			SELECT $1, $2, true
			WHERE NOT EXISTS (SELECT 1 FROM clients WHERE name = $2)
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM clients WHERE name = $2
		LIMIT 1
	`, clientID, "Demo Builders LLC").Scan(&clientID)
	if err != nil {
		return fmt.Errorf("seed client: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO contracts (id, client_id, number, is_active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (client_id, number) DO NOTHING
	`, id.New(), clientID, "C-2026-001"); err != nil {
		return fmt.Errorf("seed contract: %w", err)
	}

	for _, p := range demoProducts {
		price := types.MustMoney(p.price)
		// The opening balance goes through the ledger so that a replay of
		// inventory_movements reproduces products.stock.
		tag, err := pool.Exec(ctx, `
			WITH p AS (
				INSERT INTO products (id, sku, name, unit, stock, min_stock, purchase_price, sale_price, is_active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
				ON CONFLICT (sku) DO NOTHING
				RETURNING id, stock
			)
			INSERT INTO inventory_movements (id, product_id, type, quantity, note, created_by)
			SELECT $9, id, 'IN', stock, 'opening balance', 'seed' FROM p WHERE stock > 0
		`, id.New(), p.sku, p.name, p.unit, p.stock, p.minStock, price, price.Mul(types.MustMoney("1.25")).Round(2), id.New())
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.sku, err)
		}
		if tag.RowsAffected() > 0 {
			log.Infow("product seeded", "sku", p.sku, "stock", p.stock)
		}
	}

	log.Infow("demo client seeded", "client_id", clientID)
	return nil
}
