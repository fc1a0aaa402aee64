package modules

import (
	"github.com/unhackeddev/nfury/modules/loadtest"
	"github.com/unhackeddev/nfury/pkg/application"
)

var BuiltInModules = []application.Module{
	loadtest.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
