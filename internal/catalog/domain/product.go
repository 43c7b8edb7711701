package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog collaborator's view of a sellable item. Catalog
// administration lives elsewhere; this service only reads it.
type Product struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	SKU       string          `json:"sku" gorm:"size:64;uniqueIndex"`
	Name      string          `json:"name" gorm:"size:160;not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Available bool            `json:"available" gorm:"not null;default:true"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

var ErrProductNotFound = errors.New("product_not_found")

// Lookup resolves a product for ordering. A missing product yields (nil, nil).
type Lookup interface {
	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	Upsert(ctx context.Context, db *gorm.DB, product Product) error
}
