package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

func TestExpiryReaper_SweepTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultNotifierConfig(), "12065550001", "12065550002")

	expiring, err := f.registry.Create(ctx, "12065550001", "15555550100", "15555550101", intPtr(10))
	require.NoError(t, err)
	_, err = f.registry.Create(ctx, "12065550002", "15555550102", "15555550103", nil)
	require.NoError(t, err)

	res := f.reaper.Sweep(ctx)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Terminated)

	f.advance(10 * time.Minute)
	res = f.reaper.Sweep(ctx)
	require.NoError(t, res.Err)
	require.Len(t, res.Terminated, 1)
	assert.Equal(t, expiring.ID, res.Terminated[0].ID)
	assert.True(t, f.numberState(t, "12065550001").Available())

	res = f.reaper.Sweep(ctx)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Terminated)

	sessions, err := f.registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestExpiryReaper_ZeroExpiryScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultNotifierConfig(), "12065551234")

	s, err := f.lifecycle.Create(ctx, CreateSessionRequest{
		ParticipantA:  "15555550100",
		ParticipantB:  "15555550101",
		ExpiryMinutes: intPtr(0),
	})
	require.NoError(t, err)
	f.dispatcher.reset()

	res := f.reaper.Sweep(ctx)
	require.NoError(t, res.Err)
	require.Len(t, res.Terminated, 1)
	assert.Equal(t, s.ID, res.Terminated[0].ID)

	_, err = f.registry.LookupByNumber(ctx, "12065551234")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.True(t, f.numberState(t, "12065551234").Available())

	sent := f.dispatcher.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "[ACME RIDES]: This session has ended, talk to you again soon!", sent[0].Body)
	assert.Contains(t, f.publisher.names(), EventSessionEnded)
}

func TestExpiryReaper_LazyReaping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultNotifierConfig(), "12065551234")

	s, err := f.registry.Create(ctx, "12065551234", "15555550100", "15555550101", intPtr(1))
	require.NoError(t, err)
	f.advance(time.Hour)

	// Expired but not yet swept: still resolvable.
	found, err := f.registry.LookupByNumber(ctx, "12065551234")
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)
	assert.True(t, found.Expired(f.clock()))

	f.reaper.Sweep(ctx)
	_, err = f.registry.LookupByNumber(ctx, "12065551234")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestExpiryReaper_AggregatesFailures(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSessionRepository)
	registry := NewSessionRegistry(repo, testLogger())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return now }
	reaper := NewExpiryReaper(registry, nil, nil, testLogger())

	expired := []domain.Session{
		{ID: "gone", VirtualNumber: "12065550001"},
		{ID: "broken", VirtualNumber: "12065550002"},
		{ID: "ok", VirtualNumber: "12065550003"},
	}
	dbErr := errors.New("deadlock detected")
	repo.On("ListExpired", mock.Anything, now).Return(expired, nil).Once()
	repo.On("Delete", mock.Anything, "gone").Return(nil, domain.ErrSessionNotFound).Once()
	repo.On("Delete", mock.Anything, "broken").Return(nil, dbErr).Once()
	repo.On("Delete", mock.Anything, "ok").Return(&expired[2], nil).Once()

	res := reaper.Sweep(ctx)
	require.Len(t, res.Terminated, 1)
	assert.Equal(t, "ok", res.Terminated[0].ID)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, dbErr)
	assert.NotErrorIs(t, res.Err, domain.ErrSessionNotFound)
	assert.Contains(t, res.Err.Error(), "broken")

	repo.AssertExpectations(t)
}

func TestExpiryReaper_ListFailure(t *testing.T) {
	repo := new(MockSessionRepository)
	registry := NewSessionRegistry(repo, testLogger())
	reaper := NewExpiryReaper(registry, nil, nil, testLogger())

	dbErr := errors.New("connection refused")
	repo.On("ListExpired", mock.Anything, mock.AnythingOfType("time.Time")).Return(nil, dbErr).Once()

	res := reaper.Sweep(context.Background())
	assert.ErrorIs(t, res.Err, dbErr)
	assert.Empty(t, res.Terminated)
	repo.AssertExpectations(t)
}

func TestExpiryReaper_EndNoticeFailureDoesNotRestoreSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultNotifierConfig(), "12065551234")

	_, err := f.registry.Create(ctx, "12065551234", "15555550100", "15555550101", intPtr(0))
	require.NoError(t, err)
	f.dispatcher.fail("15555550100")

	res := f.reaper.Sweep(ctx)
	assert.NoError(t, res.Err)
	assert.Len(t, res.Terminated, 1)
	assert.True(t, f.numberState(t, "12065551234").Available())
}
