// Command seed-db loads the demo catalog, a pair of demo coupons, and a
// default API key into the database. It is idempotent: every write is an
// upsert keyed on the natural identifier.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/belshop/fulfillment/internal/storage/postgres"
)

type sizeJSON struct {
	ID            string           `json:"id"`
	Label         string           `json:"label"`
	Stock         int              `json:"stock"`
	PriceOverride *decimal.Decimal `json:"priceOverride,omitempty"`
}

type productJSON struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	BasePrice decimal.Decimal `json:"basePrice"`
	Category  string          `json:"category"`
	Images    []string        `json:"images"`
	Sizes     []sizeJSON      `json:"sizes"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or BEL_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BEL_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("BEL_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or BEL_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BEL_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
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
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, title, base_price, category, images, is_active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				base_price = EXCLUDED.base_price,
				category = EXCLUDED.category,
				images = EXCLUDED.images,
				is_active = TRUE`,
			p.ID, p.Title, p.BasePrice, p.Category, p.Images,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, s := range p.Sizes {
			_, err := pool.Exec(ctx, `
				INSERT INTO product_sizes (id, product_id, label, stock, price_override)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET
					label = EXCLUDED.label,
					stock = EXCLUDED.stock,
					price_override = EXCLUDED.price_override`,
				s.ID, p.ID, s.Label, s.Stock, s.PriceOverride,
			)
			if err != nil {
				return errors.Wrapf(err, "upsert size %s of product %s", s.ID, p.ID)
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("title", p.Title),
			slog.Int("sizes", len(p.Sizes)))
	}

	return nil
}

type couponSeed struct {
	id          string
	code        string
	typ         string
	value       decimal.Decimal
	minOrder    *decimal.Decimal
	maxDiscount *decimal.Decimal
	usageLimit  int
	scopeKind   string
	scopeIDs    []string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	minOrder := decimal.NewFromInt(50)
	maxDiscount := decimal.NewFromInt(20)

	coupons := []couponSeed{
		{
			id:          "welcome10",
			code:        "WELCOME10",
			typ:         "percentage",
			value:       decimal.NewFromInt(10),
			maxDiscount: &maxDiscount,
			usageLimit:  1000,
			scopeKind:   "all",
			scopeIDs:    []string{},
		},
		{
			id:         "shoes5",
			code:       "SHOES5",
			typ:        "fixed",
			value:      decimal.NewFromInt(5),
			minOrder:   &minOrder,
			usageLimit: 500,
			scopeKind:  "categories",
			scopeIDs:   []string{"shoes"},
		},
	}

	now := time.Now()
	validUntil := now.AddDate(1, 0, 0)

	for _, c := range coupons {
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (
				id, code, type, value, min_order_amount, max_discount_amount,
				usage_limit, valid_from, valid_until, is_active, scope_kind, scope_ids
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				code = EXCLUDED.code,
				type = EXCLUDED.type,
				value = EXCLUDED.value,
				min_order_amount = EXCLUDED.min_order_amount,
				max_discount_amount = EXCLUDED.max_discount_amount,
				usage_limit = EXCLUDED.usage_limit,
				valid_from = EXCLUDED.valid_from,
				valid_until = EXCLUDED.valid_until,
				is_active = TRUE,
				scope_kind = EXCLUDED.scope_kind,
				scope_ids = EXCLUDED.scope_ids`,
			c.id, c.code, c.typ, c.value, c.minOrder, c.maxDiscount,
			c.usageLimit, now, validUntil, c.scopeKind, c.scopeIDs,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("type", c.typ))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = TRUE`,
		"default", keyHash, "Default admin key", []string{"manage_orders"},
	)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
