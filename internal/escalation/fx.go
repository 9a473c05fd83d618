package escalation

import "go.uber.org/fx"

var Module = fx.Module("escalation.engine",
	fx.Provide(NewEngine),
	fx.Provide(
		func(e *Engine) Service { return e },
		func(e *Engine) Settler { return e },
	),
)
