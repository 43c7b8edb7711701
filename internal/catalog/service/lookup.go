package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/cache"
	"github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Settings config.SettingsProvider
	Cache    cache.ProductCache `optional:"true"`
}

// Lookup reads products through a short-lived cache. Only availability at
// order time matters, so a TTL of a minute is tolerated.
type Lookup struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	settings config.SettingsProvider
	cache    cache.ProductCache
}

func New(p Params) domain.Lookup {
	c := p.Cache
	if c == nil {
		c = cache.NewProductCache()
	}
	return &Lookup{
		db:       p.DB,
		log:      p.Log.Named("catalog.lookup"),
		repo:     p.Repo,
		settings: p.Settings,
		cache:    c,
	}
}

func (l *Lookup) GetProduct(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	if id == 0 {
		return nil, nil
	}
	if product, ok := l.cache.GetProduct(id); ok {
		return &product, nil
	}

	product, err := l.repo.FindByID(ctx, l.db, id)
	if err != nil {
		l.log.Warn("catalog lookup failed", zap.String("product_id", id.String()), zap.Error(err))
		return nil, err
	}
	if product == nil {
		return nil, nil
	}
	l.cache.SetProduct(*product, l.settings.Get().CatalogCacheTTL())
	return product, nil
}
