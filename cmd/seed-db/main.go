package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ozsapka/shop-api/internal/handler"
	"github.com/ozsapka/shop-api/internal/repository"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, color, category, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, color = EXCLUDED.color,
			category = EXCLUDED.category, price = EXCLUDED.price`

	upsertGenderSQL = `INSERT INTO genders (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertCitySQL = `INSERT INTO cities (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertUserSQL = `INSERT INTO users (id, name, surname, email, address, gender_id, city_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, surname = EXCLUDED.surname, email = EXCLUDED.email,
			address = EXCLUDED.address, gender_id = EXCLUDED.gender_id, city_id = EXCLUDED.city_id`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash, user_id = EXCLUDED.user_id,
			name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = EXCLUDED.active`
)

const demoUserID = "00000000-0000-0000-0000-000000000001"

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		adminAPIKey  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "basket-scope API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&adminAPIKey, "admin-api-key", "", "admin-scope API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if adminAPIKey == "" {
		adminAPIKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, adminAPIKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, adminAPIKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedReferenceData(ctx, pool); err != nil {
		return errors.Wrap(err, "seed reference data")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDemoUser(ctx, pool); err != nil {
		return errors.Wrap(err, "seed demo user")
	}

	if err := seedAPIKeys(ctx, pool, apiKey, adminAPIKey, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedReferenceData(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding genders and cities")

	genders := map[string]string{
		"9f0b4a64-0001-4000-8000-000000000001": "Female",
		"9f0b4a64-0001-4000-8000-000000000002": "Male",
	}
	for id, name := range genders {
		if _, err := pool.Exec(ctx, upsertGenderSQL, id, name); err != nil {
			return errors.Wrapf(err, "upsert gender %s", name)
		}
	}

	cities := map[string]string{
		"9f0b4a64-0002-4000-8000-000000000001": "Istanbul",
		"9f0b4a64-0002-4000-8000-000000000002": "Ankara",
		"9f0b4a64-0002-4000-8000-000000000003": "Izmir",
		"9f0b4a64-0002-4000-8000-000000000004": "Bursa",
	}
	for id, name := range cities {
		if _, err := pool.Exec(ctx, upsertCitySQL, id, name); err != nil {
			return errors.Wrapf(err, "upsert city %s", name)
		}
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Color, p.Category, p.Price,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedDemoUser(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo user", slog.String("id", demoUserID))

	if _, err := pool.Exec(ctx, upsertUserSQL,
		demoUserID,
		"Demo", "Customer", "demo@example.com", "",
		nil, nil,
	); err != nil {
		return errors.Wrap(err, "upsert demo user")
	}

	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, apiKey, adminAPIKey, pepper string) error {
	slog.Info("seeding API keys")

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default",
		handler.HashKey([]byte(pepper), apiKey),
		demoUserID,
		"Default test key",
		[]string{handler.ScopeBasket},
		true,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	slog.Info("upserted API key", slog.String("id", "default"))

	if adminAPIKey == "" {
		return nil
	}

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"admin",
		handler.HashKey([]byte(pepper), adminAPIKey),
		demoUserID,
		"Back-office key",
		[]string{handler.ScopeBasket, handler.ScopeAdmin},
		true,
	); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}
	slog.Info("upserted API key", slog.String("id", "admin"))

	return nil
}
