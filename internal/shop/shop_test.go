package shop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
)

func TestRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(memory.New())

	s, err := d.Register(ctx, "S1", "Udupi Corner", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "S1", s.ID)
	assert.True(t, s.Accepting())
	assert.Equal(t, PayoutHold, s.PayoutMode)

	_, err = d.Register(ctx, "S1", "Other", "uid-2")
	assert.ErrorIs(t, err, apperr.ErrShopExists)

	_, err = d.Get(ctx, "S2")
	assert.ErrorIs(t, err, apperr.ErrShopNotFound)
}

func TestKillSwitch(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(memory.New())
	_, err := d.Register(ctx, "S1", "Udupi Corner", "uid-1")
	require.NoError(t, err)

	require.NoError(t, d.EnsureAccepting(ctx, "S1"))
	require.NoError(t, d.EnsureAccepting(ctx, "unregistered"))

	off := false
	_, err = d.UpdateSettings(ctx, "S1", Settings{Active: &off})
	require.NoError(t, err)
	assert.ErrorIs(t, d.EnsureAccepting(ctx, "S1"), apperr.ErrShopInactive)

	bad := "WEEKLY"
	_, err = d.UpdateSettings(ctx, "S1", Settings{PayoutMode: &bad})
	assert.Error(t, err)

	_, err = d.UpdateSettings(ctx, "S9", Settings{Active: &off})
	assert.ErrorIs(t, err, apperr.ErrShopNotFound)
}

func TestRegisterDeviceKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	d := NewDirectory(memory.New().WithClock(func() time.Time { return clock }))

	require.NoError(t, d.RegisterDevice(ctx, "S1", "tok-a", ""))
	clock = clock.Add(time.Hour)
	require.NoError(t, d.RegisterDevice(ctx, "S1", "tok-a", "android"))
	require.NoError(t, d.RegisterDevice(ctx, "S1", "tok-b", "web"))

	devs, err := d.Devices(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, "tok-a", devs[0].Token)
	assert.Equal(t, "android", devs[0].Platform)
	assert.True(t, devs[0].UpdatedAt.After(devs[0].CreatedAt))

	tokens, err := d.DeviceTokens(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)

	assert.ErrorIs(t, d.RegisterDevice(ctx, "S1", " ", "web"), apperr.ErrInvalidIdentifier)
}

func TestRevenueIncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	d := NewDirectory(store)
	_, err := d.Register(ctx, "S1", "Udupi Corner", "uid-1")
	require.NoError(t, err)

	for _, amt := range []int64{150, 40} {
		w, err := RevenueIncrement("S1", amt)
		require.NoError(t, err)
		require.NoError(t, store.Commit(ctx, w))
	}
	s, err := d.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, int64(190), s.Revenue)
}
