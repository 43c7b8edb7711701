package orderevents

import (
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("order.events",
	fx.Provide(NewHub),
	fx.Provide(NewExporter),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) orderdomain.Publisher { return d }),
)
