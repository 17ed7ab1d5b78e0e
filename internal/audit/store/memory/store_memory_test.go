package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/audit"
)

func TestStoreRecordsByActor(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, audit.Record{ID: uuid.New(), ActorID: "a", Operation: "role.escalate"}))
	require.NoError(t, store.Record(ctx, audit.Record{ID: uuid.New(), ActorID: "b", Operation: "password.reset"}))
	require.NoError(t, store.Record(ctx, audit.Record{ID: uuid.New(), ActorID: "a", Operation: "quota.reset"}))

	require.Len(t, store.Records(), 3)

	byA := store.ByActor("a")
	require.Len(t, byA, 2)
	require.Equal(t, "role.escalate", byA[0].Operation)
	require.Equal(t, "quota.reset", byA[1].Operation)

	require.Empty(t, store.ByActor("missing"))
}
