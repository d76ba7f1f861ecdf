package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	history int
	closed  bool
}

func (a *stubAgent) Generate(ctx context.Context, parts []Part) (string, error) {
	a.history += 2
	return "ok", nil
}
func (a *stubAgent) HistoryLength() int  { return a.history }
func (a *stubAgent) EstimateTokens() int { return a.history * 10 }
func (a *stubAgent) TrimHistory(keep int) int {
	if keep < a.history {
		a.history = keep
	}
	return a.history
}
func (a *stubAgent) Close() error {
	a.closed = true
	return nil
}

var testModels = map[string]string{
	"alpha": "vendor.alpha-1",
	"beta":  "vendor.beta-2",
}

func newTestStore(build AgentBuilder) *SessionStore {
	return NewSessionStore(testModels, "alpha", build)
}

func TestGetOrCreateConstructsOnce(t *testing.T) {
	var builds atomic.Int32
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		builds.Add(1)
		return &stubAgent{}, nil
	})

	const n = 16
	agents := make([]Agent, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := store.GetOrCreate(context.Background(), 7, nil)
			require.NoError(t, err)
			agents[i] = a
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, a := range agents {
		assert.Same(t, agents[0], a)
	}
}

func TestGetOrCreateReportsLoadingAlias(t *testing.T) {
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		assert.Equal(t, "vendor.alpha-1", modelID)
		return &stubAgent{}, nil
	})

	var loading []string
	_, err := store.GetOrCreate(context.Background(), 1, func(alias string) {
		loading = append(loading, alias)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, loading)

	// Second call returns the cached handle without another loading event.
	_, err = store.GetOrCreate(context.Background(), 1, func(alias string) {
		loading = append(loading, alias)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, loading)
}

func TestGetOrCreateBuildFailure(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		if fail {
			return nil, boom
		}
		return &stubAgent{}, nil
	})

	_, err := store.GetOrCreate(context.Background(), 1, nil)
	require.ErrorIs(t, err, boom)
	assert.False(t, store.Status(1).Initialized)

	// A later attempt on the same session may succeed.
	fail = false
	_, err = store.GetOrCreate(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.True(t, store.Status(1).Initialized)
}

func TestSwitchModelDropsHandle(t *testing.T) {
	var last *stubAgent
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		last = &stubAgent{}
		return last, nil
	})

	_, err := store.GetOrCreate(context.Background(), 1, nil)
	require.NoError(t, err)
	first := last

	modelID, err := store.SwitchModel(1, "beta")
	require.NoError(t, err)
	assert.Equal(t, "vendor.beta-2", modelID)
	assert.True(t, first.closed)
	assert.Equal(t, "beta", store.Alias(1))
	assert.False(t, store.Status(1).Initialized)

	_, err = store.GetOrCreate(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.NotSame(t, first, last)
}

func TestSwitchModelUnknownAlias(t *testing.T) {
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		return &stubAgent{}, nil
	})

	_, err := store.SwitchModel(1, "nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
	// The session keeps its previous alias.
	assert.Equal(t, "alpha", store.Alias(1))
}

func TestResetIdempotent(t *testing.T) {
	var agent *stubAgent
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		agent = &stubAgent{}
		return agent, nil
	})

	assert.False(t, store.Reset(1))

	_, err := store.GetOrCreate(context.Background(), 1, nil)
	require.NoError(t, err)

	assert.True(t, store.Reset(1))
	assert.True(t, agent.closed)
	assert.False(t, store.Reset(1))
}

func TestTrimHistory(t *testing.T) {
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		return &stubAgent{history: 10}, nil
	})

	_, _, err := store.TrimHistory(1, 4)
	require.Error(t, err)

	_, err = store.GetOrCreate(context.Background(), 1, nil)
	require.NoError(t, err)

	before, after, err := store.TrimHistory(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, before)
	assert.Equal(t, 4, after)
}

func TestStatusDefaults(t *testing.T) {
	store := newTestStore(func(ctx context.Context, modelID string) (Agent, error) {
		return &stubAgent{}, nil
	})

	st := store.Status(99)
	assert.Equal(t, "alpha", st.Alias)
	assert.False(t, st.Initialized)
	assert.Zero(t, st.History)
}

func TestAliasesSorted(t *testing.T) {
	store := newTestStore(nil)
	assert.Equal(t, []string{"alpha", "beta"}, store.Aliases())
}
