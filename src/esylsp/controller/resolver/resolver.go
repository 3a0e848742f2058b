// Package resolver computes the concrete backend command and search path for
// a classified project mode.
package resolver

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey = "resolver"

	_configKeyBinDir = "esy.binDir"

	_backendBinary = "ocamlmerlin-lsp"
	_toolBinary    = "esy"

	_windowsExeSuffix = ".exe"
	_windowsCmdSuffix = ".cmd"

	_pathEnvKey = "PATH"
)

// Resolved is the outcome of executable resolution.
type Resolved struct {
	// Command is the backend invocation: a bare name for esy-managed
	// projects (the build tool resolves it in the project environment), or
	// an absolute path into the bundled binary directory otherwise.
	Command string
	// ToolCommand is the build tool executable, platform suffixed.
	ToolCommand string
	// SearchPath is the PATH value to launch with.
	SearchPath string
	// BinDir is the bundled directory prepended to SearchPath, empty when
	// the project is esy-managed.
	BinDir string
}

// Controller resolves backend executables.
type Controller interface {
	Resolve(wctx entity.WorkspaceContext, mode entity.ProjectMode) Resolved
}

// Params are inbound parameters to initialize a new resolver.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
}

type controller struct {
	logger *zap.SugaredLogger
	binDir string
	goos   string
}

// New creates a new resolver controller. The bundled binary directory may be
// overridden in config; by default it sits next to the installed executable.
func New(p Params) Controller {
	c := &controller{
		logger: p.Logger.With("component", _nameKey),
		goos:   runtime.GOOS,
	}

	if val := p.Config.Get(_configKeyBinDir); val.HasValue() {
		if err := val.Populate(&c.binDir); err != nil {
			c.logger.Warnw("invalid value for config key, using default", "key", _configKeyBinDir, "error", err)
		}
	}
	if c.binDir == "" {
		c.binDir = defaultBinDir()
	}

	return c
}

// Resolve maps a project mode to the command and search path used at launch.
func (c *controller) Resolve(wctx entity.WorkspaceContext, mode entity.ProjectMode) Resolved {
	binary := _backendBinary
	tool := _toolBinary
	if c.goos == "windows" {
		binary += _windowsExeSuffix
		tool += _windowsCmdSuffix
	}

	inherited := environValue(wctx.Environ, _pathEnvKey)

	if mode == entity.ProjectModeEsy {
		// Invocation is proxied through the build tool's project
		// environment; leave the name bare and the search path untouched.
		return Resolved{
			Command:     binary,
			ToolCommand: tool,
			SearchPath:  inherited,
		}
	}

	searchPath := c.binDir
	if inherited != "" {
		searchPath += string(os.PathListSeparator) + inherited
	}
	return Resolved{
		Command:     filepath.Join(c.binDir, binary),
		ToolCommand: tool,
		SearchPath:  searchPath,
		BinDir:      c.binDir,
	}
}

// defaultBinDir is the platform-specific executable directory bundled with
// the installed extension.
func defaultBinDir() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join("bin", runtime.GOOS+"-"+runtime.GOARCH)
	}
	return filepath.Join(filepath.Dir(exe), "bin", runtime.GOOS+"-"+runtime.GOARCH)
}

func environValue(environ []string, key string) string {
	prefix := key + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix)
		}
	}
	return ""
}
