package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	claimed  bool
	setErr   error
	delErr   error
	setKey   string
	setTTL   time.Duration
	released []string
}

func (s *recordingStore) Get(context.Context, string) (string, error) { return "", nil }

func (s *recordingStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	s.setKey, s.setTTL = key, ttl
	return s.claimed, s.setErr
}

func (s *recordingStore) Del(_ context.Context, keys ...string) error {
	s.released = append(s.released, keys...)
	return s.delErr
}

func (s *recordingStore) IdempotencyKey(scope, id string) string {
	return "stl:idempotency:" + scope + ":" + id
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	require.Error(t, err)
	_, err = NewManager(&recordingStore{}, -time.Second)
	require.Error(t, err)
}

func TestClaimKeysByConsumerAndEvent(t *testing.T) {
	store := &recordingStore{claimed: true}
	manager, err := NewManager(store, 72*time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	claimed, err := manager.Claim(context.Background(), "settlement-notifications", eventID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, "stl:idempotency:evt:processed:settlement-notifications:"+eventID.String(), store.setKey)
	require.Equal(t, 72*time.Hour, store.setTTL)
}

func TestClaimRejectsMissingIdentity(t *testing.T) {
	manager, err := NewManager(&recordingStore{claimed: true}, time.Hour)
	require.NoError(t, err)

	_, err = manager.Claim(context.Background(), "", uuid.New())
	require.ErrorIs(t, err, ErrConsumerRequired)
	_, err = manager.Claim(context.Background(), "ledger-analytics", uuid.Nil)
	require.ErrorIs(t, err, ErrEventIDRequired)
}

func TestProcessSkipsEventsClaimedElsewhere(t *testing.T) {
	manager, err := NewManager(&recordingStore{claimed: false}, time.Hour)
	require.NoError(t, err)

	ran := false
	handled, err := manager.Process(context.Background(), "ledger-analytics", uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, handled)
	require.False(t, ran)
}

func TestProcessReleasesClaimWhenHandlerFails(t *testing.T) {
	store := &recordingStore{claimed: true}
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	boom := errors.New("bigquery quota exceeded")

	handled, err := manager.Process(context.Background(), "ledger-analytics", uuid.New(), func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, handled)
	require.Equal(t, []string{store.setKey}, store.released)
}

func TestProcessReportsReleaseFailureAlongsideCause(t *testing.T) {
	store := &recordingStore{claimed: true, delErr: errors.New("redis gone")}
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	boom := errors.New("handler failed")

	_, err = manager.Process(context.Background(), "ledger-analytics", uuid.New(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "redis gone")
}

func TestProcessSurfacesStoreErrors(t *testing.T) {
	manager, err := NewManager(&recordingStore{setErr: errors.New("redis timeout")}, time.Hour)
	require.NoError(t, err)

	handled, err := manager.Process(context.Background(), "ledger-analytics", uuid.New(), func(context.Context) error { return nil })
	require.ErrorContains(t, err, "redis timeout")
	require.False(t, handled)
}
