package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/esy-community/esy-language-server/src/esylsp/controller/classifier"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/resolver"
	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/factory"
	"github.com/esy-community/esy-language-server/src/esylsp/gateway/host"
	"github.com/esy-community/esy-language-server/src/esylsp/gateway/host/hostmock"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/errors"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/watcher"
	"github.com/esy-community/esy-language-server/src/esylsp/repository/session"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const _root = "/workspace/project"

type stubClassifier struct {
	mode    entity.ProjectMode
	verdict classifier.Verdict
}

func (s stubClassifier) Classify(ctx context.Context, wctx entity.WorkspaceContext) entity.ProjectMode {
	return s.mode
}

func (s stubClassifier) Validate(ctx context.Context, wctx entity.WorkspaceContext, mode entity.ProjectMode) classifier.Verdict {
	return s.verdict
}

type stubResolver struct{}

func (stubResolver) Resolve(wctx entity.WorkspaceContext, mode entity.ProjectMode) resolver.Resolved {
	return factory.ResolvedEsy()
}

type stubLauncher struct {
	builds   int
	starts   int
	startErr error
	conn     jsonrpc2.Conn
}

func (s *stubLauncher) BuildProcessSpecs(wctx entity.WorkspaceContext, r resolver.Resolved, opts entity.LaunchOptions) entity.ProcessSpecs {
	s.builds++
	return entity.ProcessSpecs{}
}

func (s *stubLauncher) Start(ctx context.Context, sess *entity.Session) error {
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	sess.Conn = s.conn
	sess.PID = 4242
	return nil
}

type noopWatcher struct{}

func (noopWatcher) Watch(ctx context.Context, root string, sink watcher.Sink) (func(), error) {
	return func() {}, nil
}

type stubInfoFile struct {
	fields map[string]string
}

func (s *stubInfoFile) UpdateField(key, value string) error {
	if s.fields == nil {
		s.fields = map[string]string{}
	}
	s.fields[key] = value
	return nil
}

func newController(t *testing.T, cls stubClassifier, lnch *stubLauncher, gw host.Gateway) (*controller, session.Repository) {
	repo := session.New(tally.NewTestScope("testing", make(map[string]string, 0)))
	c := &controller{
		classifier: cls,
		resolver:   stubResolver{},
		launcher:   lnch,
		sessions:   repo,
		host:       gw,
		watcher:    noopWatcher{},
		infoFile:   &stubInfoFile{},
		logger:     zap.NewNop().Sugar(),
		stats:      tally.NewTestScope("testing", make(map[string]string, 0)),
		environ:    func() []string { return []string{"PATH=/usr/bin:/bin"} },
		watchStops: make(map[uuid.UUID]func()),
		live:       make(map[uuid.UUID]*entity.Session),
	}
	return c, repo
}

func TestLaunchRefusals(t *testing.T) {
	ctx := context.Background()

	t.Run("no workspace root emits one notice and never builds specs", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)
		gw.EXPECT().ShowNotice(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		lnch := &stubLauncher{}
		c, _ := newController(t, stubClassifier{}, lnch, gw)

		sess, err := c.Launch(ctx, "", RegistrationHooks{})
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.Zero(t, lnch.builds)
		assert.Zero(t, lnch.starts)
	})

	t.Run("failed gate surfaces every notice and blocks any spawn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)
		gw.EXPECT().ShowNotice(gomock.Any(), gomock.Any()).Return(nil).Times(2)

		lnch := &stubLauncher{}
		cls := stubClassifier{
			mode: entity.ProjectModeEsy,
			verdict: classifier.Verdict{Notices: []string{
				`missing development dependency "ocaml" in esy.json`,
				`missing development dependency "@opam/merlin-lsp" in esy.json`,
			}},
		}
		c, _ := newController(t, cls, lnch, gw)

		sess, err := c.Launch(ctx, _root, RegistrationHooks{})
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.Zero(t, lnch.builds, "gate must be fully evaluated before any spec building")
		assert.Zero(t, lnch.starts, "gate must block the spawn")
	})

	t.Run("occupied workspace root is refused with DuplicateSessionError", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)

		lnch := &stubLauncher{}
		c, repo := newController(t, stubClassifier{mode: entity.ProjectModeEsy, verdict: classifier.Verdict{MayLaunch: true}}, lnch, gw)
		require.NoError(t, repo.Set(ctx, factory.Session(entity.SessionStateReady, _root)))

		_, err := c.Launch(ctx, _root, RegistrationHooks{})
		require.Error(t, err)
		assert.True(t, errors.IsDuplicateSession(err))
		assert.Zero(t, lnch.starts)
	})
}

func TestLaunchSuccess(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	gw := hostmock.NewMockGateway(ctrl)
	gw.EXPECT().SetStatus(gomock.Any(), host.StatusLoading, gomock.Any()).Times(1)
	gw.EXPECT().SetStatus(gomock.Any(), host.StatusReady, gomock.Any()).Times(1)

	lnch := &stubLauncher{}
	cls := stubClassifier{mode: entity.ProjectModeEsy, verdict: classifier.Verdict{MayLaunch: true}}
	c, repo := newController(t, cls, lnch, gw)

	var commandsBound, handlersBound bool
	hooks := RegistrationHooks{
		Commands: func(ctx context.Context, sess *entity.Session) error {
			commandsBound = true
			return nil
		},
		Handlers: func(ctx context.Context, sess *entity.Session) error {
			handlersBound = true
			return nil
		},
	}

	sess, err := c.Launch(ctx, _root, hooks)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, entity.SessionStateReady, sess.State)
	assert.Equal(t, 1, lnch.builds)
	assert.Equal(t, 1, lnch.starts)
	assert.True(t, commandsBound, "command hook binds UI affordances to the live client")
	assert.True(t, handlersBound)

	stored, err := repo.GetByWorkspaceRoot(ctx, _root)
	require.NoError(t, err)
	assert.Equal(t, sess.UUID, stored.UUID)
}

func TestLaunchStartFailure(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	gw := hostmock.NewMockGateway(ctrl)
	gw.EXPECT().SetStatus(gomock.Any(), host.StatusLoading, gomock.Any()).Times(1)
	gw.EXPECT().SetStatus(gomock.Any(), host.StatusFailed, gomock.Any()).Times(1)

	lnch := &stubLauncher{startErr: assert.AnError}
	cls := stubClassifier{mode: entity.ProjectModeEsy, verdict: classifier.Verdict{MayLaunch: true}}
	c, repo := newController(t, cls, lnch, gw)

	sess, err := c.Launch(ctx, _root, RegistrationHooks{})
	require.Error(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, entity.SessionStateFailed, sess.State)

	// The slot is freed so an explicit retry may recover.
	_, err = repo.GetByWorkspaceRoot(ctx, _root)
	assert.Error(t, err)
}

func TestTransportPolicies(t *testing.T) {
	ctx := context.Background()

	readySession := func(t *testing.T, c *controller, repo session.Repository) *entity.Session {
		clientSide, serverSide := net.Pipe()
		t.Cleanup(func() {
			clientSide.Close()
			serverSide.Close()
		})
		conn := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
		conn.Go(ctx, jsonrpc2.MethodNotFoundHandler)

		sess := factory.Session(entity.SessionStateReady, _root)
		sess.Conn = conn
		require.NoError(t, repo.Set(ctx, sess))
		return sess
	}

	t.Run("transport close moves a ready session to Closed without restart", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)
		gw.EXPECT().SetStatus(gomock.Any(), host.StatusHidden, gomock.Any()).Times(1)

		lnch := &stubLauncher{}
		c, repo := newController(t, stubClassifier{}, lnch, gw)
		sess := readySession(t, c, repo)

		c.handleTransportClose(ctx, sess)
		assert.Equal(t, entity.SessionStateClosed, sess.State)
		assert.Zero(t, lnch.starts, "closed sessions are never restarted")

		_, err := repo.GetByWorkspaceRoot(ctx, _root)
		assert.Error(t, err, "the workspace slot is freed")
	})

	t.Run("transport error shuts the session down as Failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)
		gw.EXPECT().SetStatus(gomock.Any(), host.StatusFailed, gomock.Any()).Times(1)

		c, repo := newController(t, stubClassifier{}, &stubLauncher{}, gw)
		sess := readySession(t, c, repo)

		c.handleTransportError(ctx, sess, assert.AnError)
		assert.Equal(t, entity.SessionStateFailed, sess.State)
	})

	t.Run("dispose stands the monitor down before closing the transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)
		gw.EXPECT().Release().Times(1)

		c, repo := newController(t, stubClassifier{}, &stubLauncher{}, gw)
		sess := readySession(t, c, repo)
		c.live[sess.UUID] = sess

		monitorDone := make(chan struct{})
		go func() {
			c.monitor(sess)
			close(monitorDone)
		}()

		require.NoError(t, c.Dispose(ctx, sess.UUID))

		// Closing the conn wakes the monitor; the disposed session must not
		// be reinterpreted as a transport failure.
		select {
		case <-monitorDone:
		case <-time.After(5 * time.Second):
			t.Fatal("monitor did not observe the closed transport")
		}
		assert.Equal(t, entity.SessionStateDisposed, sess.State)
	})

	t.Run("dispose after close is a no-op and safe to call twice", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gw := hostmock.NewMockGateway(ctrl)
		gw.EXPECT().SetStatus(gomock.Any(), host.StatusHidden, gomock.Any()).Times(1)

		c, repo := newController(t, stubClassifier{}, &stubLauncher{}, gw)
		sess := readySession(t, c, repo)

		c.handleTransportClose(ctx, sess)
		assert.NotPanics(t, func() {
			assert.NoError(t, c.Dispose(ctx, sess.UUID))
			assert.NoError(t, c.Dispose(ctx, sess.UUID))
		})
	})
}

func TestDispose(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	gw := hostmock.NewMockGateway(ctrl)
	gw.EXPECT().Release().Times(1)

	c, repo := newController(t, stubClassifier{}, &stubLauncher{}, gw)
	sess := factory.Session(entity.SessionStateReady, _root)
	require.NoError(t, repo.Set(ctx, sess))

	require.NoError(t, c.Dispose(ctx, sess.UUID))

	count, err := repo.SessionCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Second dispose finds nothing and succeeds.
	assert.NoError(t, c.Dispose(ctx, sess.UUID))
}
