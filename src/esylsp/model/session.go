package model

import (
	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// Session is the repository layer model for one supervised backend session.
type Session struct {
	UUID          uuid.UUID
	WorkspaceRoot string
	Mode          int
	State         int
	Specs         entity.ProcessSpecs
	Conn          jsonrpc2.Conn
	Server        protocol.Server
	Selector      protocol.DocumentSelector
	PID           int
}
