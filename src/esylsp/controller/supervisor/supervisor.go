// Package supervisor owns the lifecycle of backend sessions: launch gating,
// readiness, close/error policy and disposal.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/esy-community/esy-language-server/src/esylsp/controller/classifier"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/launcher"
	"github.com/esy-community/esy-language-server/src/esylsp/controller/resolver"
	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/gateway/host"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/errors"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/serverinfofile"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/watcher"
	"github.com/esy-community/esy-language-server/src/esylsp/repository/session"
	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey = "supervisor"

	_statusLabel = "merlin-lsp"

	_infoKeyState = "state"
	_infoKeyPID   = "pid"
)

// RegistrationHooks are invoked once a session reaches Ready, so the host
// layer can bind commands and request handlers to the live client. This is
// the sole extension point for UI behavior.
type RegistrationHooks struct {
	Commands func(ctx context.Context, sess *entity.Session) error
	Handlers func(ctx context.Context, sess *entity.Session) error
}

// Controller supervises backend sessions.
type Controller interface {
	// Launch classifies the workspace root, consults the gate, and starts a
	// session when permitted. A refused launch returns a nil session and a
	// nil error; notices will have been surfaced to the host. A root that
	// already owns a session is refused with DuplicateSessionError.
	Launch(ctx context.Context, rootPath string, hooks RegistrationHooks) (*entity.Session, error)

	// Dispose releases a session's resources. Valid from any state and
	// idempotent; disposing an unknown session is a no-op.
	Dispose(ctx context.Context, id uuid.UUID) error
}

// Params are inbound parameters to initialize a new supervisor.
type Params struct {
	fx.In

	Classifier classifier.Controller
	Resolver   resolver.Controller
	Launcher   launcher.Controller
	Sessions   session.Repository
	Host       host.Gateway
	Watcher    watcher.Watcher
	InfoFile   serverinfofile.ServerInfoFile
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type controller struct {
	classifier classifier.Controller
	resolver   resolver.Controller
	launcher   launcher.Controller
	sessions   session.Repository
	host       host.Gateway
	watcher    watcher.Watcher
	infoFile   serverinfofile.ServerInfoFile
	logger     *zap.SugaredLogger
	stats      tally.Scope

	// environ is a seam so launches are reproducible in tests.
	environ func() []string

	mu         sync.Mutex
	watchStops map[uuid.UUID]func()
	// live holds the session objects shared with their monitor goroutines,
	// so disposal marks the object the monitor inspects.
	live map[uuid.UUID]*entity.Session
}

// New creates a new supervisor controller.
func New(p Params) Controller {
	return &controller{
		classifier: p.Classifier,
		resolver:   p.Resolver,
		launcher:   p.Launcher,
		sessions:   p.Sessions,
		host:       p.Host,
		watcher:    p.Watcher,
		infoFile:   p.InfoFile,
		logger:     p.Logger.With("component", _nameKey),
		stats:      p.Stats.SubScope("supervisor"),
		environ:    os.Environ,
		watchStops: make(map[uuid.UUID]func()),
		live:       make(map[uuid.UUID]*entity.Session),
	}
}

// Launch runs the full lifecycle: classify, gate, resolve, build specs,
// spawn, handshake. Classification and the gate are fully evaluated before
// any spawn begins.
func (c *controller) Launch(ctx context.Context, rootPath string, hooks RegistrationHooks) (*entity.Session, error) {
	if rootPath == "" {
		c.host.ShowNotice(ctx, "no workspace folder is open; not starting merlin-lsp")
		c.stats.Counter("launch_refused").Inc(1)
		return nil, nil
	}

	if existing, err := c.sessions.GetByWorkspaceRoot(ctx, rootPath); err == nil {
		c.stats.Counter("launch_refused").Inc(1)
		return nil, &errors.DuplicateSessionError{WorkspaceRoot: rootPath, Existing: existing.UUID}
	}

	wctx := entity.WorkspaceContext{RootPath: rootPath, Environ: c.environ()}

	mode := c.classifier.Classify(ctx, wctx)
	verdict := c.classifier.Validate(ctx, wctx, mode)
	for _, notice := range verdict.Notices {
		if err := c.host.ShowNotice(ctx, notice); err != nil {
			c.logger.Warnw("surfacing notice", "error", err)
		}
	}
	if !verdict.MayLaunch {
		c.stats.Counter("launch_refused").Inc(1)
		return nil, nil
	}

	resolved := c.resolver.Resolve(wctx, mode)
	specs := c.launcher.BuildProcessSpecs(wctx, resolved, entity.LaunchOptions{UseEsy: mode == entity.ProjectModeEsy})

	sess := &entity.Session{
		UUID:          uuid.Must(uuid.NewV4()),
		WorkspaceRoot: rootPath,
		Mode:          mode,
		State:         entity.SessionStateStarting,
		Specs:         specs,
	}
	if err := c.sessions.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("registering session: %w", err)
	}
	c.mu.Lock()
	c.live[sess.UUID] = sess
	c.mu.Unlock()

	c.host.SetStatus(ctx, host.StatusLoading, _statusLabel)
	c.updateInfo(_infoKeyState, sess.State.String())

	if err := c.launcher.Start(ctx, sess); err != nil {
		c.fail(ctx, sess, err)
		return sess, fmt.Errorf("starting session: %w", err)
	}

	c.transition(ctx, sess, entity.SessionStateReady)
	c.host.SetStatus(ctx, host.StatusReady, _statusLabel)
	c.updateInfo(_infoKeyPID, fmt.Sprintf("%d", sess.PID))
	c.stats.Counter("launched").Inc(1)

	c.runHooks(ctx, sess, hooks)
	c.startWatching(ctx, sess)

	go c.monitor(sess)

	return sess, nil
}

// Dispose releases the status signal and detaches from the client and
// process. Safe to call twice.
func (c *controller) Dispose(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	sess, ok := c.live[id]
	delete(c.live, id)
	c.mu.Unlock()
	if !ok {
		stored, err := c.sessions.Get(ctx, id)
		if err != nil {
			// Already disposed or never existed.
			return nil
		}
		sess = stored
	}

	c.stopWatching(id)
	// The monitor goroutine shares this object; marking it before closing
	// the transport stands the close/error policy down.
	sess.State = entity.SessionStateDisposed
	if sess.Conn != nil {
		sess.Conn.Close()
	}
	c.host.Release()
	c.updateInfo(_infoKeyState, entity.SessionStateDisposed.String())
	return c.sessions.Delete(ctx, id)
}

// monitor waits for the transport to end and applies the fixed policy:
// closed sessions are not restarted, errored sessions are shut down.
func (c *controller) monitor(sess *entity.Session) {
	if sess.Conn == nil {
		return
	}
	<-sess.Conn.Done()

	ctx := context.WithValue(context.Background(), entity.SessionContextKey, sess.UUID)
	if err := sess.Conn.Err(); err != nil {
		c.handleTransportError(ctx, sess, err)
		return
	}
	c.handleTransportClose(ctx, sess)
}

// handleTransportClose marks the session Closed. No automatic restart is
// attempted; the build tool supervising the backend is the restart authority.
func (c *controller) handleTransportClose(ctx context.Context, sess *entity.Session) {
	if sess.State == entity.SessionStateDisposed {
		return
	}
	c.logger.Infow("backend transport closed", "session", sess.UUID, "workspaceRoot", sess.WorkspaceRoot)
	c.teardown(ctx, sess, entity.SessionStateClosed)
	c.stats.Counter("closed").Inc(1)
}

// handleTransportError shuts the session down rather than attempting repair.
func (c *controller) handleTransportError(ctx context.Context, sess *entity.Session, err error) {
	if sess.State == entity.SessionStateDisposed {
		return
	}
	c.logger.Warnw("backend transport error", "session", sess.UUID, "workspaceRoot", sess.WorkspaceRoot, "error", err)
	c.teardown(ctx, sess, entity.SessionStateFailed)
	c.stats.Counter("failed").Inc(1)
}

func (c *controller) fail(ctx context.Context, sess *entity.Session, err error) {
	c.logger.Warnw("session launch failed", "session", sess.UUID, "error", err)
	c.teardown(ctx, sess, entity.SessionStateFailed)
	c.stats.Counter("failed").Inc(1)
}

// teardown moves the session to a terminal state and frees its slot so a
// subsequent explicit launch may recover.
func (c *controller) teardown(ctx context.Context, sess *entity.Session, state entity.SessionState) {
	c.mu.Lock()
	delete(c.live, sess.UUID)
	c.mu.Unlock()
	c.stopWatching(sess.UUID)
	if sess.Conn != nil {
		sess.Conn.Close()
	}
	sess.State = state
	c.updateInfo(_infoKeyState, state.String())
	if state == entity.SessionStateFailed {
		c.host.SetStatus(ctx, host.StatusFailed, _statusLabel)
	} else {
		c.host.SetStatus(ctx, host.StatusHidden, "")
	}
	if err := c.sessions.Delete(ctx, sess.UUID); err != nil {
		c.logger.Warnw("removing session", "session", sess.UUID, "error", err)
	}
}

func (c *controller) transition(ctx context.Context, sess *entity.Session, state entity.SessionState) {
	sess.State = state
	c.updateInfo(_infoKeyState, state.String())
	if err := c.sessions.Set(ctx, sess); err != nil {
		c.logger.Warnw("persisting session state", "session", sess.UUID, "error", err)
	}
}

func (c *controller) runHooks(ctx context.Context, sess *entity.Session, hooks RegistrationHooks) {
	if hooks.Commands != nil {
		if err := hooks.Commands(ctx, sess); err != nil {
			c.logger.Warnw("command registration hook", "session", sess.UUID, "error", err)
		}
	}
	if hooks.Handlers != nil {
		if err := hooks.Handlers(ctx, sess); err != nil {
			c.logger.Warnw("handler registration hook", "session", sess.UUID, "error", err)
		}
	}
}

func (c *controller) startWatching(ctx context.Context, sess *entity.Session) {
	stop, err := c.watcher.Watch(ctx, sess.WorkspaceRoot, sess.Server)
	if err != nil {
		c.logger.Warnw("starting artifact watcher", "session", sess.UUID, "error", err)
		return
	}
	c.mu.Lock()
	c.watchStops[sess.UUID] = stop
	c.mu.Unlock()
}

func (c *controller) stopWatching(id uuid.UUID) {
	c.mu.Lock()
	stop, ok := c.watchStops[id]
	delete(c.watchStops, id)
	c.mu.Unlock()
	if ok {
		stop()
	}
}

func (c *controller) updateInfo(key, value string) {
	if c.infoFile == nil {
		return
	}
	if err := c.infoFile.UpdateField(key, value); err != nil {
		c.logger.Warnw("updating launch info file", "key", key, "error", err)
	}
}
