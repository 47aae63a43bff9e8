package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalmisr/omal-responder/internal/models"
)

func TestWithSessionCreatesLazily(t *testing.T) {
	s := NewStore(true)
	ctx := context.Background()

	_, err := s.Get("u1", models.ChannelPrivate)
	require.ErrorIs(t, err, ErrSessionNotFound)

	var stage models.Stage
	require.NoError(t, s.WithSession(ctx, "u1", models.ChannelPrivate, func(st *models.UserDialogueState) error {
		stage = st.Stage
		return nil
	}))
	assert.Equal(t, models.StageAwaitingName, stage)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.WithSession(ctx, "u1", models.ChannelPublic, func(st *models.UserDialogueState) error {
		stage = st.Stage
		return nil
	}))
	assert.Equal(t, models.StageActive, stage, "public sessions skip name collection")
	assert.Equal(t, 2, s.Len())
}

func TestNameCollectionDisabled(t *testing.T) {
	s := NewStore(false)
	require.NoError(t, s.WithSession(context.Background(), "u1", models.ChannelPrivate, func(st *models.UserDialogueState) error {
		assert.Equal(t, models.StageActive, st.Stage)
		return nil
	}))
}

func TestWithSessionPropagatesError(t *testing.T) {
	s := NewStore(true)
	boom := errors.New("boom")
	err := s.WithSession(context.Background(), "u1", models.ChannelPrivate, func(*models.UserDialogueState) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithSessionRejectsEmptySender(t *testing.T) {
	s := NewStore(true)
	err := s.WithSession(context.Background(), "", models.ChannelPrivate, func(*models.UserDialogueState) error { return nil })
	require.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(true)
	ctx := context.Background()
	require.NoError(t, s.WithSession(ctx, "u1", models.ChannelPrivate, func(st *models.UserDialogueState) error {
		st.DisplayName = "أحمد"
		st.History = append(st.History, models.HistoryEntry{Inbound: "a"})
		return nil
	}))

	cp, err := s.Get("u1", models.ChannelPrivate)
	require.NoError(t, err)
	cp.DisplayName = "changed"
	cp.History[0].Inbound = "changed"

	again, err := s.Get("u1", models.ChannelPrivate)
	require.NoError(t, err)
	assert.Equal(t, "أحمد", again.DisplayName)
	assert.Equal(t, "a", again.History[0].Inbound)
}

func TestClear(t *testing.T) {
	s := NewStore(true)
	ctx := context.Background()
	require.NoError(t, s.WithSession(ctx, "u1", models.ChannelPrivate, func(st *models.UserDialogueState) error {
		st.Stage = models.StageActive
		return nil
	}))
	require.NoError(t, s.Clear("u1", models.ChannelPrivate))
	assert.ErrorIs(t, s.Clear("u1", models.ChannelPrivate), ErrSessionNotFound)

	require.NoError(t, s.WithSession(ctx, "u1", models.ChannelPrivate, func(st *models.UserDialogueState) error {
		assert.Equal(t, models.StageAwaitingName, st.Stage, "cleared session starts over")
		return nil
	}))
}

func TestWithSessionHonorsContext(t *testing.T) {
	s := NewStore(true)
	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = s.WithSession(context.Background(), "u1", models.ChannelPrivate, func(*models.UserDialogueState) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithSession(ctx, "u1", models.ChannelPrivate, func(*models.UserDialogueState) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

func TestPerKeySerialization(t *testing.T) {
	s := NewStore(false)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithSession(ctx, "u1", models.ChannelPrivate, func(st *models.UserDialogueState) error {
				st.History = append(st.History, models.HistoryEntry{Inbound: "x"})
				return nil
			})
		}()
	}
	wg.Wait()
	st, err := s.Get("u1", models.ChannelPrivate)
	require.NoError(t, err)
	assert.Len(t, st.History, 50)
}

func TestSnapshot(t *testing.T) {
	s := NewStore(true)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.WithSession(ctx, id, models.ChannelPrivate, func(*models.UserDialogueState) error { return nil }))
	}
	snap := s.Snapshot()
	require.Len(t, snap, 3)
	for _, st := range snap {
		assert.NotEmpty(t, st.SenderID)
	}
}
