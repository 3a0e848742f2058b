// Package host is the outbound boundary to the editor host UI.
// It keeps the status-signal state itself and forwards renderable updates to
// an attached protocol client, so the session state machine stays testable
// without a live host.
package host

import (
	"context"
	"fmt"
	"sync"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

//go:generate mockgen -source=host.go -destination=hostmock/host_mock.go -package=hostmock

// CommandShowMerlinFiles is the command identifier bound to the status
// indicator. The host implements the action; the launcher only names it.
const CommandShowMerlinFiles = "esylsp.showMerlinFiles"

// Status is the three-state projection of a session rendered by the host.
type Status int

const (
	// StatusHidden means no indicator is rendered.
	StatusHidden Status = iota
	// StatusLoading means the backend is starting.
	StatusLoading
	// StatusReady means the backend acknowledged startup.
	StatusReady
	// StatusFailed means the session ended in error; the indicator is not shown.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "hidden"
	}
}

// Gateway is used to send notices and status updates to the host UI.
type Gateway interface {
	// AttachClient binds a live protocol client. Until attached, updates are
	// recorded and logged only.
	AttachClient(client protocol.Client)
	// Detach unbinds the client. Safe to call when no client is attached.
	Detach()

	// ShowNotice reports one human-readable configuration or launch notice.
	ShowNotice(ctx context.Context, message string) error
	// SetStatus updates the status indicator. A label accompanies StatusReady.
	SetStatus(ctx context.Context, status Status, label string)
	// Status returns the current indicator state and label.
	Status() (Status, string)
	// Release hides the indicator and drops the attached client. Idempotent.
	Release()
}

type gateway struct {
	mu     sync.Mutex
	client protocol.Client
	status Status
	label  string
	logger *zap.SugaredLogger
}

// New returns a Gateway for host UI notices and status updates.
func New(logger *zap.SugaredLogger) Gateway {
	return &gateway{logger: logger}
}

func (g *gateway) AttachClient(client protocol.Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = client
}

func (g *gateway) Detach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
}

func (g *gateway) ShowNotice(ctx context.Context, message string) error {
	g.mu.Lock()
	client := g.client
	g.mu.Unlock()

	g.logger.Warnw("notice", "message", message)
	if client == nil {
		return nil
	}
	if err := client.ShowMessage(ctx, &protocol.ShowMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: message,
	}); err != nil {
		return fmt.Errorf("sending notice to host: %w", err)
	}
	return nil
}

func (g *gateway) SetStatus(ctx context.Context, status Status, label string) {
	g.mu.Lock()
	g.status = status
	g.label = label
	client := g.client
	g.mu.Unlock()

	g.logger.Infow("status changed", "status", status.String(), "label", label)

	// Failed sessions render no indicator.
	if client == nil || status == StatusFailed || status == StatusHidden {
		return
	}
	message := fmt.Sprintf("%s: %s", label, status)
	if err := client.LogMessage(ctx, &protocol.LogMessageParams{
		Type:    protocol.MessageTypeInfo,
		Message: message,
	}); err != nil {
		g.logger.Warnw("sending status to host", "error", err)
	}
}

func (g *gateway) Status() (Status, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.label
}

func (g *gateway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = StatusHidden
	g.label = ""
	g.client = nil
}
