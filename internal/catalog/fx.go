package catalog

import (
	"github.com/smallbiznis/comanda/internal/cache"
	"github.com/smallbiznis/comanda/internal/catalog/repository"
	"github.com/smallbiznis/comanda/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.lookup",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewProductCache),
	fx.Provide(service.New),
)
