package app

import (
	"context"
	"os"
	"time"

	"github.com/esy-community/esy-language-server/src/esylsp/controller"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/supervisor"
	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/gateway/host"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/core"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/executor"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/fs"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/serverinfofile"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/watcher"
	"github.com/esy-community/esy-language-server/src/esylsp/repository/session"
	tally "github.com/uber-go/tally"
	uber_config "go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _configKeyWorkspaceRoot = "esy.workspaceRoot"

// Module defines the esy-language-server application module.
var Module = fx.Options(
	controller.Module,
	fs.Module,
	executor.Module,
	serverinfofile.Module,
	watcher.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(host.New),
	fx.Provide(session.New),
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "esy-language-server",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Invoke(registerLaunch),
)

// registerLaunch starts one session for the configured workspace root when
// the daemon comes up, and disposes it on shutdown.
func registerLaunch(lc fx.Lifecycle, sup supervisor.Controller, cfg uber_config.Provider, logger *zap.SugaredLogger) {
	var root string
	if val := cfg.Get(_configKeyWorkspaceRoot); val.HasValue() {
		if err := val.Populate(&root); err != nil {
			logger.Warnw("invalid workspace root in config", "error", err)
		}
	}
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}

	var launched *entity.Session
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sess, err := sup.Launch(ctx, root, supervisor.RegistrationHooks{})
			if err != nil {
				// Launch failures are terminal for the session, not for
				// the daemon.
				logger.Warnw("session launch", "workspaceRoot", root, "error", err)
				return nil
			}
			launched = sess
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if launched == nil {
				return nil
			}
			return sup.Dispose(ctx, launched.UUID)
		},
	})
}
