// Command seed-db loads demo catalog data, promotions, and notification
// preferences into the database for local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
	"github.com/soukmarket/commerce-core/internal/domain/notification"
	"github.com/soukmarket/commerce-core/internal/domain/promotion"
	"github.com/soukmarket/commerce-core/internal/storage/postgres"
)

type productJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	CategoryID string          `json:"category_id"`
	VendorID   string          `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	Stock      int             `json:"stock"`
	TrackStock bool            `json:"track_stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
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

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	promos := promotion.NewCatalog(
		postgres.NewCouponRepository(pool),
		postgres.NewSaleRepository(pool),
	)
	if err := seedPromotions(ctx, promos); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedPreferences(ctx, postgres.NewPreferenceRepository(pool)); err != nil {
		return errors.Wrap(err, "seed preferences")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
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
		if err := repo.Put(ctx, catalog.Product{
			ID:         p.ID,
			Name:       p.Name,
			Price:      p.Price,
			CategoryID: p.CategoryID,
			VendorID:   p.VendorID,
			VendorName: p.VendorName,
			Active:     true,
			Stock:      p.Stock,
			TrackStock: p.TrackStock,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedPromotions(ctx context.Context, promos *promotion.Catalog) error {
	slog.Info("seeding demo promotions")

	coupons := []promotion.Coupon{
		{
			Code:           "SAVE10",
			DiscountType:   promotion.DiscountPercentage,
			Value:          decimal.NewFromInt(10),
			Scope:          promotion.ScopeStore,
			MaxDiscount:    decimal.NewFromInt(50),
			MinOrderAmount: decimal.NewFromInt(100),
		},
		{
			Code:         "FLAT20",
			DiscountType: promotion.DiscountFixed,
			Value:        decimal.NewFromInt(20),
			Scope:        promotion.ScopeStore,
			UsageLimit:   500,
		},
		{
			Code:          "WELCOME5",
			DiscountType:  promotion.DiscountFixed,
			Value:         decimal.NewFromInt(5),
			Scope:         promotion.ScopeStore,
			CustomerLimit: 1,
		},
	}

	for i := range coupons {
		err := promos.CreateCoupon(ctx, &coupons[i])
		switch {
		case errors.Is(err, promotion.ErrCodeTaken):
			slog.Info("coupon already seeded", slog.String("code", coupons[i].Code))
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", coupons[i].Code)
		default:
			slog.Info("created coupon", slog.String("code", coupons[i].Code))
		}
	}

	ends := time.Now().AddDate(0, 1, 0)
	sale := promotion.Sale{
		VendorID:     "vendor-souk-spice",
		DiscountType: promotion.DiscountPercentage,
		Value:        decimal.NewFromInt(20),
		ProductIDs:   []string{"prod-saffron-1g", "prod-ras-el-hanout"},
		EndsAt:       &ends,
	}
	if err := promos.CreateSale(ctx, &sale); err != nil {
		return errors.Wrap(err, "create sale")
	}
	slog.Info("created sale", slog.String("id", sale.ID), slog.String("vendor", sale.VendorID))

	return nil
}

func seedPreferences(ctx context.Context, prefs *postgres.PreferenceRepository) error {
	slog.Info("seeding notification preferences")

	if err := prefs.Put(ctx, "vendor-souk-spice", notification.Preferences{
		NewOrders:     notification.ChannelPrefs{Email: true},
		PaymentAlerts: notification.ChannelPrefs{Email: true},
	}); err != nil {
		return errors.Wrap(err, "upsert vendor preferences")
	}

	slog.Info("upserted preferences", slog.String("user", "vendor-souk-spice"))

	return nil
}
