// Package classifier decides which build system manages a workspace root and
// whether the merlin-lsp backend may be launched for it.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey = "classifier"

	_configKeyForceEsy = "esy.forceEsy"

	_esyManifest      = "esy.json"
	_packageManifest  = "package.json"
	_bsconfigManifest = "bsconfig.json"
)

// RequiredDependencies are the declared dependencies an esy project must
// carry before a launch is allowed, in notice order.
var RequiredDependencies = []string{
	"ocaml",
	"@opam/merlin-lsp",
}

// Verdict is the gate decision for a classified workspace root.
// Notices carry one human-readable message per distinct cause; all required
// dependencies are checked even after the first miss.
type Verdict struct {
	MayLaunch bool
	Notices   []string
}

// Controller classifies workspace roots.
type Controller interface {
	// Classify determines the ProjectMode for the given workspace context.
	// Filesystem probe failures and malformed manifests degrade to "not
	// detected"; Classify never panics on workspace content.
	Classify(ctx context.Context, wctx entity.WorkspaceContext) entity.ProjectMode

	// Validate produces the launch gate for a previously classified mode.
	// It must be fully evaluated before any launch decision is taken.
	Validate(ctx context.Context, wctx entity.WorkspaceContext, mode entity.ProjectMode) Verdict
}

// Params are inbound parameters to initialize a new classifier.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	FS     fs.WorkspaceFS
}

type controller struct {
	logger   *zap.SugaredLogger
	fs       fs.WorkspaceFS
	forceEsy bool
}

// New creates a new classifier controller.
func New(p Params) Controller {
	c := &controller{
		logger: p.Logger.With("component", _nameKey),
		fs:     p.FS,
	}

	if val := p.Config.Get(_configKeyForceEsy); val.HasValue() {
		if err := val.Populate(&c.forceEsy); err != nil {
			c.logger.Warnw("invalid value for config key, using default", "key", _configKeyForceEsy, "error", err)
		}
	}

	return c
}

// Classify checks, in order: open workspace, force flag, esy.json presence,
// package.json with a non-null esy key, bsconfig.json presence.
func (c *controller) Classify(ctx context.Context, wctx entity.WorkspaceContext) entity.ProjectMode {
	if wctx.RootPath == "" {
		return entity.ProjectModeUndetected
	}

	if c.forceEsy {
		return entity.ProjectModeEsy
	}

	if c.fileExists(filepath.Join(wctx.RootPath, _esyManifest)) {
		return entity.ProjectModeEsy
	}

	if c.packageManifestHasEsyKey(filepath.Join(wctx.RootPath, _packageManifest)) {
		return entity.ProjectModeEsy
	}

	if c.fileExists(filepath.Join(wctx.RootPath, _bsconfigManifest)) {
		return entity.ProjectModeBucklescript
	}

	return entity.ProjectModeUndetected
}

// Validate checks the declared dependencies of the resolved manifest.
// The BuckleScript front end manages its own toolchain, so that mode passes
// with no dependency validation.
func (c *controller) Validate(ctx context.Context, wctx entity.WorkspaceContext, mode entity.ProjectMode) Verdict {
	switch mode {
	case entity.ProjectModeBucklescript:
		return Verdict{MayLaunch: true}

	case entity.ProjectModeEsy:
		manifest, source, ok := c.loadManifest(wctx.RootPath)
		if !ok {
			return Verdict{Notices: []string{
				fmt.Sprintf("no esy configuration found at %s", wctx.RootPath),
			}}
		}

		var notices []string
		for _, dep := range RequiredDependencies {
			if !manifest.HasDependency(dep) {
				notices = append(notices, fmt.Sprintf("missing development dependency %q in %s", dep, source))
			}
		}
		return Verdict{MayLaunch: len(notices) == 0, Notices: notices}

	default:
		return Verdict{Notices: []string{
			"no supported build configuration found; expected esy.json, package.json with an esy section, or bsconfig.json",
		}}
	}
}

// loadManifest returns the dependency view of the project manifest, preferring
// esy.json over package.json, plus the file name it came from.
func (c *controller) loadManifest(root string) (*entity.Manifest, string, bool) {
	for _, name := range []string{_esyManifest, _packageManifest} {
		full := filepath.Join(root, name)
		if !c.fileExists(full) {
			continue
		}
		data, err := c.fs.ReadFile(full)
		if err != nil {
			c.logger.Warnw("manifest unreadable", "path", full, "error", err)
			continue
		}
		var manifest entity.Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			c.logger.Warnw("manifest is not valid JSON", "path", full, "error", err)
			continue
		}
		return &manifest, name, true
	}
	return nil, "", false
}

// packageManifestHasEsyKey reports whether the file parses as JSON and
// declares a non-null esy key. Malformed content is treated as key absent.
func (c *controller) packageManifestHasEsyKey(path string) bool {
	if !c.fileExists(path) {
		return false
	}
	data, err := c.fs.ReadFile(path)
	if err != nil {
		c.logger.Warnw("manifest unreadable", "path", path, "error", err)
		return false
	}
	var doc struct {
		Esy json.RawMessage `json:"esy"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Debugw("manifest is not valid JSON", "path", path, "error", err)
		return false
	}
	return len(doc.Esy) > 0 && string(doc.Esy) != "null"
}

func (c *controller) fileExists(path string) bool {
	ok, err := c.fs.FileExists(path)
	if err != nil {
		c.logger.Warnw("filesystem probe failed", "path", path, "error", err)
		return false
	}
	return ok
}
