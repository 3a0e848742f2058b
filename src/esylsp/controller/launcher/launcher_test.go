package launcher

import (
	"context"
	"io"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/factory"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/zap"
)

func newController(t *testing.T, cfg map[string]interface{}, exec executor.Executor) *controller {
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	provider, err := config.NewStaticProvider(cfg)
	require.NoError(t, err)

	c := New(Params{
		Config:   provider,
		Logger:   zap.NewNop().Sugar(),
		Executor: exec,
	})
	return c.(*controller)
}

func TestBuildProcessSpecs(t *testing.T) {
	c := newController(t, nil, executor.NewExecutor())
	wctx := factory.WorkspaceContext("/workspace/project")

	t.Run("esy projects are proxied through the build tool", func(t *testing.T) {
		specs := c.BuildProcessSpecs(wctx, factory.ResolvedEsy(), entity.LaunchOptions{UseEsy: true})
		assert.Equal(t, "esy", specs.Run.Command)
		assert.Equal(t, []string{"exec-command", "--include-current-env", "ocamlmerlin-lsp"}, specs.Run.Args)
	})

	t.Run("unmanaged projects invoke the bundled binary directly", func(t *testing.T) {
		specs := c.BuildProcessSpecs(wctx, factory.ResolvedDirect(), entity.LaunchOptions{})
		assert.Equal(t, "/ext/bin/linux-amd64/ocamlmerlin-lsp", specs.Run.Command)
		assert.Empty(t, specs.Run.Args)
		assert.Equal(t, "/ext/bin/linux-amd64", specs.Run.PathAdditions)
	})

	t.Run("environment inherits the workspace environ plus the fixed overlay", func(t *testing.T) {
		specs := c.BuildProcessSpecs(wctx, factory.ResolvedDirect(), entity.LaunchOptions{})
		env := specs.Run.Env
		assert.Equal(t, "b", env["OCAMLRUNPARAM"])
		assert.Equal(t, "-", env["MERLIN_LOG"])
		assert.Equal(t, "never", env["OCAML_COLOR"])
		assert.Equal(t, "/ext/bin/linux-amd64:/usr/bin:/bin", env["PATH"])
		assert.Equal(t, "/home/dev", env["HOME"])
	})

	t.Run("run and debug profiles are byte-identical in inherited fields", func(t *testing.T) {
		specs := c.BuildProcessSpecs(wctx, factory.ResolvedEsy(), entity.LaunchOptions{UseEsy: true})
		assert.Equal(t, specs.Run, specs.Debug)
	})

	t.Run("identical inputs yield structurally identical specs", func(t *testing.T) {
		first := c.BuildProcessSpecs(wctx, factory.ResolvedDirect(), entity.LaunchOptions{})
		second := c.BuildProcessSpecs(wctx, factory.ResolvedDirect(), entity.LaunchOptions{})
		assert.Equal(t, first, second)
	})

	t.Run("working directory is the workspace root", func(t *testing.T) {
		specs := c.BuildProcessSpecs(wctx, factory.ResolvedEsy(), entity.LaunchOptions{UseEsy: true})
		assert.Equal(t, "/workspace/project", specs.Run.Dir)
	})
}

func TestDocumentSelector(t *testing.T) {
	t.Run("default languages expand to file and untitled bindings", func(t *testing.T) {
		c := newController(t, nil, executor.NewExecutor())
		selector := c.DocumentSelector()
		require.Len(t, selector, 4)
		assert.Equal(t, "ocaml", selector[0].Language)
		assert.Equal(t, "file", selector[0].Scheme)
		assert.Equal(t, "ocaml", selector[1].Language)
		assert.Equal(t, "untitled", selector[1].Scheme)
		assert.Equal(t, "reason", selector[2].Language)
	})

	t.Run("configured languages override the default", func(t *testing.T) {
		c := newController(t, map[string]interface{}{
			"esy": map[string]interface{}{"languages": []string{"ocaml"}},
		}, executor.NewExecutor())
		assert.Len(t, c.DocumentSelector(), 2)
	})
}

func TestEnvToSlice(t *testing.T) {
	out := EnvToSlice(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, []string{"A=1", "B=2"}, out)
}

func TestStart(t *testing.T) {
	session := func() *entity.Session {
		return &entity.Session{
			UUID:          factory.UUID(),
			WorkspaceRoot: "/workspace/project",
			State:         entity.SessionStateStarting,
			Specs: entity.ProcessSpecs{
				Run: entity.ProcessSpec{
					Command: "ocamlmerlin-lsp",
					Env:     map[string]string{"PATH": "/usr/bin"},
					Dir:     "/workspace/project",
				},
			},
		}
	}

	t.Run("spawn failure is surfaced without a client", func(t *testing.T) {
		failing := executor.NewExecutor(executor.WithStartFunc(func(cmd *exec.Cmd) error {
			return assert.AnError
		}))
		c := newController(t, nil, failing)

		err := c.Start(context.Background(), session())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "spawning backend")
	})

	t.Run("successful handshake binds conn, server and selector", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		clientSide, serverSide := net.Pipe()
		defer clientSide.Close()
		defer serverSide.Close()

		// Scripted backend answering the lifecycle handshake.
		srvConn := jsonrpc2.NewConn(jsonrpc2.NewStream(serverSide))
		srvConn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
			switch req.Method() {
			case protocol.MethodInitialize:
				return reply(ctx, protocol.InitializeResult{}, nil)
			case protocol.MethodInitialized:
				return reply(ctx, nil, nil)
			}
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		})
		defer srvConn.Close()

		started := executor.NewExecutor(executor.WithStartFunc(func(cmd *exec.Cmd) error {
			return nil
		}))
		c := newController(t, nil, started)
		c.transport = func(cmd *exec.Cmd) (io.ReadWriteCloser, error) {
			return clientSide, nil
		}

		sess := session()
		err := c.Start(ctx, sess)
		require.NoError(t, err)
		assert.NotNil(t, sess.Conn)
		assert.NotNil(t, sess.Server)
		assert.Len(t, sess.Selector, 4)

		sess.Conn.Close()
	})

	t.Run("handshake failure closes the transport", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		clientSide, serverSide := net.Pipe()
		defer clientSide.Close()
		defer serverSide.Close()

		srvConn := jsonrpc2.NewConn(jsonrpc2.NewStream(serverSide))
		srvConn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
			return reply(ctx, nil, jsonrpc2.ErrInternal)
		})
		defer srvConn.Close()

		c := newController(t, nil, executor.NewExecutor(executor.WithStartFunc(func(cmd *exec.Cmd) error {
			return nil
		})))
		c.transport = func(cmd *exec.Cmd) (io.ReadWriteCloser, error) {
			return clientSide, nil
		}

		err := c.Start(ctx, session())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client handshake")
	})
}
