package flow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, time.Minute, testLogger())
	ctx := context.Background()

	state := &FlowState{
		KioskID:         "kiosk-1",
		Screen:          ScreenReceipt,
		SelectedChainID: 8453,
		ChainName:       "Base",
		TransactionHash: "0xabc",
		Amount:          "0.75",
		TokenSymbol:     "USDC",
	}

	require.NoError(t, store.Save(ctx, state.KioskID, state))

	loaded, err := store.Load(ctx, state.KioskID)
	require.NoError(t, err)
	if assert.NotNil(t, loaded) {
		assert.Equal(t, state.Screen, loaded.Screen)
		assert.Equal(t, state.SelectedChainID, loaded.SelectedChainID)
		assert.Equal(t, state.TransactionHash, loaded.TransactionHash)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "kiosk-1", &FlowState{KioskID: "kiosk-1", Screen: ScreenWelcome}))
	assert.Equal(t, time.Minute, mr.TTL("kiosk:state:kiosk-1"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "kiosk-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestRedisStore_ClearAndLoadAll(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, 0, testLogger())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, id, &FlowState{KioskID: id, Screen: ScreenWelcome}))
	}

	require.NoError(t, store.Clear(ctx, "b"))

	states, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 2)

	_, err = store.Load(ctx, "b")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx, "kiosk-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, "kiosk-2", &FlowState{KioskID: "kiosk-2", Screen: ScreenReview}))
	require.NoError(t, store.Save(ctx, "kiosk-1", &FlowState{KioskID: "kiosk-1", Screen: ScreenWelcome}))

	states, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "kiosk-1", states[0].KioskID)

	require.NoError(t, store.Clear(ctx, "kiosk-1"))
	_, err = store.Load(ctx, "kiosk-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
