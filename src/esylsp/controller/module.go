package controller

import (
	"github.com/esy-community/esy-language-server/src/esylsp/controller/classifier"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/launcher"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/resolver"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/supervisor"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(classifier.New),
	fx.Provide(resolver.New),
	fx.Provide(launcher.New),
	fx.Provide(supervisor.New),
)
