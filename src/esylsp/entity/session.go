package entity

import (
	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type keyType string

// SessionContextKey indicates the key to be used to identify the session UUID in the context.
const SessionContextKey keyType = "SessionUUID"

// SessionState tracks a session through its lifecycle.
// Valid transitions: Idle → Starting → Ready → (Closed | Failed).
// Disposed is reachable from any state.
type SessionState int

const (
	// SessionStateIdle is the initial state before launch begins.
	SessionStateIdle SessionState = iota
	// SessionStateStarting means the backend process is spawning or the
	// client handshake is in flight.
	SessionStateStarting
	// SessionStateReady means the client acknowledged startup.
	SessionStateReady
	// SessionStateClosed is terminal; the transport closed and no restart
	// is attempted.
	SessionStateClosed
	// SessionStateFailed is terminal; a transport or protocol error shut
	// the session down.
	SessionStateFailed
	// SessionStateDisposed means the session's resources were released.
	SessionStateDisposed
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "idle"
	case SessionStateStarting:
		return "starting"
	case SessionStateReady:
		return "ready"
	case SessionStateClosed:
		return "closed"
	case SessionStateFailed:
		return "failed"
	case SessionStateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further lifecycle transitions are possible
// other than disposal.
func (s SessionState) Terminal() bool {
	return s == SessionStateClosed || s == SessionStateFailed || s == SessionStateDisposed
}

// ProcessSpec describes one invocation profile of the backend process.
type ProcessSpec struct {
	Command string
	Args    []string
	Env     map[string]string
	// PathAdditions is prepended to PATH when non-empty.
	PathAdditions string
	Dir           string
}

// ProcessSpecs holds the run and debug invocation profiles. Both inherit
// identical environment construction; any divergence between them is a bug.
type ProcessSpecs struct {
	Run   ProcessSpec
	Debug ProcessSpec
}

// Session entity representing one supervised run of the backend process and
// its bound protocol client. A Session is the sole owner of its subprocess.
type Session struct {
	UUID          uuid.UUID                 `json:"uuid" zap:"uuid"`
	WorkspaceRoot string                    `json:"workspaceRoot" zap:"workspaceRoot"`
	Mode          ProjectMode               `json:"mode" zap:"mode"`
	State         SessionState              `json:"state" zap:"state"`
	Specs         ProcessSpecs              `json:"-" zap:"-"`
	Conn          jsonrpc2.Conn             `json:"-" zap:"-"`
	Server        protocol.Server           `json:"-" zap:"-"`
	Selector      protocol.DocumentSelector `json:"-" zap:"-"`
	PID           int                       `json:"pid" zap:"pid"`
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	return s.UUID.String()
}
