// Package launcher builds backend process specifications and starts the
// protocol client bound to them.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/esy-community/esy-language-server/src/esylsp/controller/resolver"
	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/executor"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/rpc"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey = "launcher"

	_configKeyLanguages   = "esy.languages"
	_configKeyInitOptions = "esy.initializationOptions"

	// Build tool subcommand that executes a command inside the project's
	// resolved environment.
	_toolExecSubcommand = "exec-command"
	_toolIncludeEnvFlag = "--include-current-env"

	_pathEnvKey = "PATH"
)

// Fixed environment overlay configuring backend logging and behavior.
// Both invocation profiles receive exactly these values; per-profile
// divergence is a defect, not a feature.
var _envOverlay = map[string]string{
	"OCAMLRUNPARAM": "b",
	"MERLIN_LOG":    "-",
	"OCAML_COLOR":   "never",
}

// _defaultLanguages are the recognized language identifiers when none are
// configured.
var _defaultLanguages = []string{"ocaml", "reason"}

// Controller builds process specs and starts protocol clients.
type Controller interface {
	// BuildProcessSpecs is pure given its inputs: it never launches
	// anything and identical inputs yield structurally identical specs.
	BuildProcessSpecs(wctx entity.WorkspaceContext, r resolver.Resolved, opts entity.LaunchOptions) entity.ProcessSpecs

	// Start spawns the backend using the run profile, binds the protocol
	// client over the subprocess's standard streams, and completes the
	// initialize handshake. The debug profile stays available on the
	// session for clients that distinguish debug attach from run.
	Start(ctx context.Context, sess *entity.Session) error
}

// Params are inbound parameters to initialize a new launcher.
type Params struct {
	fx.In

	Config   config.Provider
	Logger   *zap.SugaredLogger
	Executor executor.Executor
}

type controller struct {
	logger      *zap.SugaredLogger
	executor    executor.Executor
	languages   []string
	initOptions interface{}

	// transport and dispatch are seams for tests.
	transport func(cmd *exec.Cmd) (io.ReadWriteCloser, error)
	dispatch  func(conn jsonrpc2.Conn, logger *zap.Logger) protocol.Server
}

// New creates a new launcher controller.
func New(p Params) Controller {
	c := &controller{
		logger:    p.Logger.With("component", _nameKey),
		executor:  p.Executor,
		languages: _defaultLanguages,
		transport: rpc.FromCommand,
		dispatch:  protocol.ServerDispatcher,
	}

	if val := p.Config.Get(_configKeyLanguages); val.HasValue() {
		var languages []string
		if err := val.Populate(&languages); err != nil {
			c.logger.Warnw("invalid value for config key, using default", "key", _configKeyLanguages, "error", err)
		} else if len(languages) > 0 {
			c.languages = languages
		}
	}

	if val := p.Config.Get(_configKeyInitOptions); val.HasValue() {
		var initOptions map[string]interface{}
		if err := val.Populate(&initOptions); err != nil {
			c.logger.Warnw("invalid value for config key, ignoring", "key", _configKeyInitOptions, "error", err)
		} else if len(initOptions) > 0 {
			c.initOptions = initOptions
		}
	}

	return c
}

// BuildProcessSpecs produces the run and debug profiles for the resolved
// backend. One environment builder serves both profiles.
func (c *controller) BuildProcessSpecs(wctx entity.WorkspaceContext, r resolver.Resolved, opts entity.LaunchOptions) entity.ProcessSpecs {
	return entity.ProcessSpecs{
		Run:   c.buildSpec(wctx, r, opts, "run"),
		Debug: c.buildSpec(wctx, r, opts, "debug"),
	}
}

func (c *controller) buildSpec(wctx entity.WorkspaceContext, r resolver.Resolved, opts entity.LaunchOptions, profile string) entity.ProcessSpec {
	var command string
	var args []string
	if opts.UseEsy {
		command = r.ToolCommand
		args = []string{_toolExecSubcommand, _toolIncludeEnvFlag, r.Command}
	} else {
		command = r.Command
	}

	return entity.ProcessSpec{
		Command:       command,
		Args:          args,
		Env:           c.buildEnv(wctx, r, profile),
		PathAdditions: r.BinDir,
		Dir:           wctx.RootPath,
	}
}

// buildEnv overlays the fixed backend variables and the resolved search path
// on the inherited environment. The profile parameter exists so that any
// future per-profile value is added in exactly one place.
func (c *controller) buildEnv(wctx entity.WorkspaceContext, r resolver.Resolved, profile string) map[string]string {
	env := make(map[string]string, len(wctx.Environ)+len(_envOverlay)+1)
	for _, kv := range wctx.Environ {
		if i := strings.Index(kv, "="); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range _envOverlay {
		env[k] = v
	}
	if r.SearchPath != "" {
		env[_pathEnvKey] = r.SearchPath
	}
	return env
}

// Start spawns the run profile and performs the client handshake.
func (c *controller) Start(ctx context.Context, sess *entity.Session) error {
	spec := sess.Specs.Run
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stderr = os.Stderr

	rwc, err := c.transport(cmd)
	if err != nil {
		return fmt.Errorf("attaching transport: %w", err)
	}

	if err := c.executor.StartCommand(cmd, EnvToSlice(spec.Env)); err != nil {
		return fmt.Errorf("spawning backend: %w", err)
	}
	if cmd.Process != nil {
		sess.PID = cmd.Process.Pid
	}

	conn := rpc.NewClientConn(ctx, rwc, nil)
	server := c.dispatch(conn, c.logger.Desugar())
	sess.Conn = conn
	sess.Server = server
	sess.Selector = c.DocumentSelector()

	if err := c.handshake(ctx, sess, server); err != nil {
		conn.Close()
		return fmt.Errorf("client handshake: %w", err)
	}

	return nil
}

func (c *controller) handshake(ctx context.Context, sess *entity.Session, server protocol.Server) error {
	rootURI := uri.File(sess.WorkspaceRoot)
	params := &protocol.InitializeParams{
		ProcessID:             int32(os.Getpid()),
		RootURI:               rootURI,
		Capabilities:          protocol.ClientCapabilities{},
		InitializationOptions: c.initOptions,
		Trace:                 protocol.TraceOff,
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: string(rootURI), Name: filepath.Base(sess.WorkspaceRoot)},
		},
	}

	if _, err := server.Initialize(ctx, params); err != nil {
		return err
	}
	return server.Initialized(ctx, &protocol.InitializedParams{})
}

// DocumentSelector expands each recognized language identifier into a
// persisted-file binding and an untitled-buffer binding.
func (c *controller) DocumentSelector() protocol.DocumentSelector {
	selector := make(protocol.DocumentSelector, 0, len(c.languages)*2)
	for _, lang := range c.languages {
		selector = append(selector,
			&protocol.DocumentFilter{Language: lang, Scheme: "file"},
			&protocol.DocumentFilter{Language: lang, Scheme: "untitled"},
		)
	}
	return selector
}

// EnvToSlice renders an environment map in the KEY=value form expected by
// os/exec, sorted for deterministic launches.
func EnvToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
