package mapper

import (
	"context"

	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/esy-community/esy-language-server/src/esylsp/internal/errors"
	"github.com/esy-community/esy-language-server/src/esylsp/model"
	"github.com/gofrs/uuid"
)

// SessionToModel maps a Session entity to its model equivalent.
func SessionToModel(f *entity.Session) *model.Session {
	return &model.Session{
		UUID:          f.UUID,
		WorkspaceRoot: f.WorkspaceRoot,
		Mode:          int(f.Mode),
		State:         int(f.State),
		Specs:         f.Specs,
		Conn:          f.Conn,
		Server:        f.Server,
		Selector:      f.Selector,
		PID:           f.PID,
	}
}

// ModelToSession maps a model Session to its entity equivalent.
func ModelToSession(f *model.Session) (*entity.Session, error) {
	return &entity.Session{
		UUID:          f.UUID,
		WorkspaceRoot: f.WorkspaceRoot,
		Mode:          entity.ProjectMode(f.Mode),
		State:         entity.SessionState(f.State),
		Specs:         f.Specs,
		Conn:          f.Conn,
		Server:        f.Server,
		Selector:      f.Selector,
		PID:           f.PID,
	}, nil
}

// ContextToSessionUUID extracts the UUID from a context
func ContextToSessionUUID(c context.Context) (uuid.UUID, error) {
	s, ok := c.Value(entity.SessionContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, &errors.NoSessionFoundError{}
	}
	return s, nil
}
