package table

import (
	"github.com/smallbiznis/comanda/internal/table/repository"
	"github.com/smallbiznis/comanda/internal/table/service"
	"go.uber.org/fx"
)

var Module = fx.Module("table.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
