package gormdb

import (
	"context"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/catalog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type productRecord struct {
	ID            string `gorm:"primaryKey;type:text"`
	Name          string `gorm:"not null"`
	PriceMinor    int64  `gorm:"not null"`
	LoyaltyPoints int64  `gorm:"not null"`
	WeightGrams   int    `gorm:"not null"`
	Active        bool   `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (productRecord) TableName() string { return "products" }

// Open builds a gorm handle on top of an existing pgx pool so the catalog
// shares connections with the rest of the service.
func Open(pool *pgxpool.Pool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return db, nil
}

// Store reads products through gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	products := make(map[string]catalog.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	var records []productRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	for _, r := range records {
		products[r.ID] = catalog.Product{
			ID:            r.ID,
			Name:          r.Name,
			PriceMinor:    r.PriceMinor,
			LoyaltyPoints: r.LoyaltyPoints,
			WeightGrams:   r.WeightGrams,
			Active:        r.Active,
		}
	}
	return products, nil
}

// Upsert writes a product snapshot; the catalog service uses it to sync prices.
func (s *Store) Upsert(ctx context.Context, p catalog.Product) error {
	record := productRecord{
		ID:            p.ID,
		Name:          p.Name,
		PriceMinor:    p.PriceMinor,
		LoyaltyPoints: p.LoyaltyPoints,
		WeightGrams:   p.WeightGrams,
		Active:        p.Active,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price_minor", "loyalty_points", "weight_grams", "active", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}
