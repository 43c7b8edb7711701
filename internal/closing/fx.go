package closing

import (
	"github.com/smallbiznis/comanda/internal/closing/repository"
	"github.com/smallbiznis/comanda/internal/closing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("closing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
