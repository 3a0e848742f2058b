package mapper

import (
	"context"
	"testing"

	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	sess := &entity.Session{
		UUID:          uuid.Must(uuid.NewV4()),
		WorkspaceRoot: "/workspace/project",
		Mode:          entity.ProjectModeEsy,
		State:         entity.SessionStateReady,
		PID:           4242,
	}

	m := SessionToModel(sess)
	back, err := ModelToSession(m)
	require.NoError(t, err)
	assert.Equal(t, sess, back)
}

func TestContextToSessionUUID(t *testing.T) {
	t.Run("extracts the uuid when present", func(t *testing.T) {
		id := uuid.Must(uuid.NewV4())
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)

		got, err := ContextToSessionUUID(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("fails when missing", func(t *testing.T) {
		_, err := ContextToSessionUUID(context.Background())
		assert.Error(t, err)
	})
}
