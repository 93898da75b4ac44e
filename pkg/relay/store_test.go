package relay

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTranscriptStore_CreateSeedsSystemTurn(t *testing.T) {
	store := NewTranscriptStore(12, "persona")
	require.NoError(t, store.Create("c1"))

	turns, err := store.Get("c1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, RoleSystem, turns[0].Role)
	require.Equal(t, "persona", turns[0].Content)
}

func TestTranscriptStore_CreateExistingFails(t *testing.T) {
	store := NewTranscriptStore(12, "persona")
	require.NoError(t, store.Create("c1"))
	require.NoError(t, store.Append("c1", Turn{Role: RoleUser, Content: "hello"}))

	err := store.Create("c1")
	require.True(t, errors.Is(err, ErrTranscriptExists))

	// The existing transcript is untouched.
	turns, err := store.Get("c1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestTranscriptStore_LengthBoundHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		maxLen := 3 + rng.Intn(12)
		n := 1 + rng.Intn(60)
		store := NewTranscriptStore(maxLen, "persona")
		require.NoError(t, store.Create("c1"))

		for i := 0; i < n; i++ {
			require.NoError(t, store.Append("c1", Turn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)}))
			turns, err := store.Get("c1")
			require.NoError(t, err)
			require.LessOrEqual(t, len(turns), maxLen, "maxLen=%d after %d user turns", maxLen, i+1)
			require.Equal(t, RoleSystem, turns[0].Role)
			require.Equal(t, "persona", turns[0].Content)

			// Most rounds get an assistant reply; occasionally one is skipped,
			// as happens after an upstream failure.
			if rng.Intn(5) > 0 {
				require.NoError(t, store.Append("c1", Turn{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)}))
			}
			turns, err = store.Get("c1")
			require.NoError(t, err)
			require.LessOrEqual(t, len(turns), maxLen)
			require.Equal(t, RoleSystem, turns[0].Role)
		}
	}
}

func TestTranscriptStore_TrimEvictsOldestPair(t *testing.T) {
	store := NewTranscriptStore(5, "persona")
	require.NoError(t, store.Create("c1"))
	require.NoError(t, store.Append("c1", Turn{Role: RoleUser, Content: "u1"}))
	require.NoError(t, store.Append("c1", Turn{Role: RoleAssistant, Content: "a1"}))
	require.NoError(t, store.Append("c1", Turn{Role: RoleUser, Content: "u2"}))
	require.NoError(t, store.Append("c1", Turn{Role: RoleAssistant, Content: "a2"}))

	// At the bound; one more append must evict u1/a1 and keep the system turn.
	require.NoError(t, store.Append("c1", Turn{Role: RoleUser, Content: "u3"}))

	turns, err := store.Get("c1")
	require.NoError(t, err)
	require.Equal(t, []Turn{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "u2"},
		{Role: RoleAssistant, Content: "a2"},
		{Role: RoleUser, Content: "u3"},
	}, turns)
}

func TestTranscriptStore_DeleteThenGetNotFound(t *testing.T) {
	store := NewTranscriptStore(12, "persona")
	require.NoError(t, store.Create("c1"))

	store.Delete("c1")
	_, err := store.Get("c1")
	require.True(t, errors.Is(err, ErrTranscriptNotFound))

	err = store.Append("c1", Turn{Role: RoleUser, Content: "ghost"})
	require.True(t, errors.Is(err, ErrTranscriptNotFound))

	// Deleting again is a no-op.
	store.Delete("c1")
}

func TestTranscriptStore_IndependentConnectionsDoNotInterfere(t *testing.T) {
	store := NewTranscriptStore(8, "persona")
	const conns = 16
	for i := 0; i < conns; i++ {
		require.NoError(t, store.Create(fmt.Sprintf("c%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				_ = store.Append(id, Turn{Role: RoleUser, Content: id})
			}
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	require.Equal(t, conns, store.Len())
	for i := 0; i < conns; i++ {
		id := fmt.Sprintf("c%d", i)
		turns, err := store.Get(id)
		require.NoError(t, err)
		require.LessOrEqual(t, len(turns), 8)
		require.Equal(t, RoleSystem, turns[0].Role)
		for _, turn := range turns[1:] {
			require.Equal(t, id, turn.Content)
		}
	}
}
