package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
)

// ProductCache stores catalog lookups made while orders are opened or edited.
type ProductCache interface {
	GetProduct(id snowflake.ID) (catalogdomain.Product, bool)
	SetProduct(product catalogdomain.Product, ttl time.Duration)
}

type productCache struct {
	products Cache[snowflake.ID, catalogdomain.Product]
}

func NewProductCache() ProductCache {
	return &productCache{products: NewTTLCache[snowflake.ID, catalogdomain.Product]()}
}

func (c *productCache) GetProduct(id snowflake.ID) (catalogdomain.Product, bool) {
	return c.products.Get(id)
}

func (c *productCache) SetProduct(product catalogdomain.Product, ttl time.Duration) {
	if product.ID == 0 {
		return
	}
	c.products.Set(product.ID, product, ttl)
}
