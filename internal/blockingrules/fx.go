package blockingrules

import (
	"github.com/smallbiznis/clinicbilling/internal/blockingrules/repository"
	"github.com/smallbiznis/clinicbilling/internal/blockingrules/service"
	"go.uber.org/fx"
)

var Module = fx.Module("blockingrules.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
