// Package dialogue owns per-sender conversation state and the lexical
// rules of the dialogue state machine.
package dialogue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/omalmisr/omal-responder/internal/models"
)

// ErrSessionNotFound is returned when no state exists for a sender.
var ErrSessionNotFound = errors.New("session not found")

type key struct {
	channel models.Channel
	sender  string
}

// session guards one sender's state. The lock is a one-slot channel so
// acquisition can honor context cancellation.
type session struct {
	lock    chan struct{}
	state   *models.UserDialogueState
	removed bool
}

// Store keeps dialogue state keyed by (channel, sender). Work on
// different keys never contends; work on one key is serialized.
type Store struct {
	mu             sync.Mutex
	sessions       map[key]*session
	nameCollection bool
	now            func() time.Time
}

// NewStore creates an empty store. With nameCollection set, private
// sessions start by asking for the sender's name.
func NewStore(nameCollection bool) *Store {
	return &Store{
		sessions:       make(map[key]*session),
		nameCollection: nameCollection,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) initialStage(ch models.Channel) models.Stage {
	if ch == models.ChannelPrivate && s.nameCollection {
		return models.StageAwaitingName
	}
	return models.StageActive
}

func (s *Store) getOrCreate(k key) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[k]; ok {
		return sess
	}
	now := s.now()
	sess := &session{
		lock: make(chan struct{}, 1),
		state: &models.UserDialogueState{
			SenderID:  k.sender,
			Channel:   k.channel,
			Stage:     s.initialStage(k.channel),
			History:   []models.HistoryEntry{},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.sessions[k] = sess
	return sess
}

func (s *Store) lookup(k key) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[k]
	return sess, ok
}

// WithSession runs fn with exclusive access to the sender's state,
// creating it on first use. fn must not retain the pointer after it
// returns.
func (s *Store) WithSession(ctx context.Context, senderID string, ch models.Channel, fn func(*models.UserDialogueState) error) error {
	if senderID == "" {
		return errors.New("dialogue: empty sender id")
	}
	k := key{channel: ch, sender: senderID}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess := s.getOrCreate(k)
		select {
		case sess.lock <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if sess.removed {
			// Cleared while we waited; start over with a fresh session.
			<-sess.lock
			continue
		}
		err := fn(sess.state)
		sess.state.UpdatedAt = s.now()
		<-sess.lock
		return err
	}
}

// Get returns a copy of the sender's state.
func (s *Store) Get(senderID string, ch models.Channel) (*models.UserDialogueState, error) {
	sess, ok := s.lookup(key{channel: ch, sender: senderID})
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lock <- struct{}{}
	defer func() { <-sess.lock }()
	if sess.removed {
		return nil, ErrSessionNotFound
	}
	return sess.state.Clone(), nil
}

// Clear removes the sender's state. A turn in flight for the sender
// finishes first.
func (s *Store) Clear(senderID string, ch models.Channel) error {
	k := key{channel: ch, sender: senderID}
	sess, ok := s.lookup(k)
	if !ok {
		return ErrSessionNotFound
	}
	sess.lock <- struct{}{}
	defer func() { <-sess.lock }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[k]; !ok || cur != sess {
		return ErrSessionNotFound
	}
	sess.removed = true
	delete(s.sessions, k)
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot returns copies of every session, oldest first.
func (s *Store) Snapshot() []*models.UserDialogueState {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	out := make([]*models.UserDialogueState, 0, len(all))
	for _, sess := range all {
		sess.lock <- struct{}{}
		if !sess.removed {
			out = append(out, sess.state.Clone())
		}
		<-sess.lock
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
