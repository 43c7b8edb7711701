package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSettingsHolder),
	fx.Provide(func(h *SettingsHolder) SettingsProvider { return h }),
)
