package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/catalog/repository"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestLookupCachesProducts(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Product{}))

	repo := repository.Provide()
	ctx := context.Background()
	now := time.Now().UTC()
	product := domain.Product{ID: snowflake.ID(10), SKU: "empanada", Name: "Empanada", Price: decimal.RequireFromString("300"), Available: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Upsert(ctx, db, product))

	lookup := New(Params{DB: db, Log: zap.NewNop(), Repo: repo, Settings: config.NewStaticSettings(config.DefaultSettings())})

	got, err := lookup.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Empanada", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("300")))

	// served from cache after the row changes
	require.NoError(t, db.Exec(`UPDATE products SET available = ? WHERE id = ?`, false, product.ID).Error)
	cached, err := lookup.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, cached.Available)

	missing, err := lookup.GetProduct(ctx, snowflake.ID(999))
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
