package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hound-taskchat/internal/match"
	apperrors "hound-taskchat/shared/errors"
)

const (
	// DefaultTTL is how long an untouched conversation is remembered.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxKeys bounds the number of tracked conversations.
	DefaultMaxKeys = 10000
)

// Key builds the store key for a user's conversation.
func Key(userID, conversationID string) string {
	if conversationID == "" {
		conversationID = "default"
	}
	return userID + ":" + conversationID
}

type entry struct {
	state   State
	touched time.Time
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store holds conversation state in memory with a TTL measured from the last
// mutation. Expired entries are dropped lazily on read, by Reap, and when the
// key bound forces an eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*keyLock
	ttl     time.Duration
	maxKeys int
	now     func() time.Time
}

// NewStore creates a Store. Zero values select the defaults.
func NewStore(ttl time.Duration, maxKeys int, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[string]*entry),
		locks:   make(map[string]*keyLock),
		ttl:     ttl,
		maxKeys: maxKeys,
		now:     now,
	}
}

// Acquire serializes turns on key. The caller must call release exactly once.
func (s *Store) Acquire(key string) (release func()) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, key)
			}
			s.mu.Unlock()
		})
	}
}

// Get returns a copy of the state for key, starting fresh when the key is
// unknown or its entry has expired.
func (s *Store) Get(key string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key).state.clone()
}

// Update applies fn to the state for key and refreshes its TTL.
func (s *Store) Update(key string, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	fn(&e.state)
	e.state.mirrorOp()
	e.touched = s.now()
}

// Clear forgets key entirely.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// SetDeletePending replaces the delete flow of key. It rejects combinations
// that break the stage rules: awaiting_confirm needs exactly one candidate
// and it must be the selection; awaiting_choice needs two or more candidates
// and no selection.
func (s *Store) SetDeletePending(key string, candidates []match.Candidate, stage Stage, selected, query string) error {
	if err := validateStage(candidates, stage, selected); err != nil {
		return err
	}
	s.Update(key, func(st *State) {
		st.PendingOp = &PendingOp{
			Type:           OpDelete,
			Stage:          stage,
			Candidates:     cloneCandidates(candidates),
			SelectedTaskID: selected,
			Query:          query,
		}
	})
	return nil
}

// MarkReprompted records that the current delete stage already re-asked once.
func (s *Store) MarkReprompted(key string) {
	s.Update(key, func(st *State) {
		if st.PendingOp != nil {
			st.PendingOp.Reprompted = true
		}
		if st.Pending != nil {
			st.Pending.Reprompted = true
		}
	})
}

// ClearDeletePending ends the delete flow of key.
func (s *Store) ClearDeletePending(key string) {
	s.Update(key, func(st *State) { st.PendingOp = nil })
}

// SetPending records a single-step clarification for key.
func (s *Store) SetPending(key string, p Pending) {
	s.Update(key, func(st *State) {
		p.Candidates = cloneCandidates(p.Candidates)
		st.Pending = &p
	})
}

// ClearPending drops the single-step clarification of key.
func (s *Store) ClearPending(key string) {
	s.Update(key, func(st *State) { st.Pending = nil })
}

// Len returns the number of tracked conversations, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reap removes expired entries and returns how many were dropped.
func (s *Store) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// StartReaper runs Reap every interval until ctx is done.
func (s *Store) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Reap()
			}
		}
	}()
}

// live returns the unexpired entry for key, creating it if needed. s.mu must
// be held.
func (s *Store) live(key string) *entry {
	now := s.now()
	if e, ok := s.entries[key]; ok {
		if !s.expired(e, now) {
			return e
		}
		delete(s.entries, key)
	}
	if len(s.entries) >= s.maxKeys {
		s.evictOldest()
	}
	e := &entry{touched: now}
	s.entries[key] = e
	return e
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.touched) > s.ttl
}

func (s *Store) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.entries {
		if oldestKey == "" || e.touched.Before(oldest) {
			oldestKey, oldest = k, e.touched
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func validateStage(candidates []match.Candidate, stage Stage, selected string) error {
	switch stage {
	case StageAwaitingConfirm:
		if len(candidates) != 1 || selected == "" || candidates[0].TaskID != selected {
			return &apperrors.ConflictError{Message: fmt.Sprintf(
				"awaiting_confirm needs one candidate matching the selection, got %d candidates and selection %q", len(candidates), selected)}
		}
	case StageAwaitingChoice:
		if len(candidates) < 2 || selected != "" {
			return &apperrors.ConflictError{Message: fmt.Sprintf(
				"awaiting_choice needs at least two candidates and no selection, got %d candidates and selection %q", len(candidates), selected)}
		}
	case StageAwaitingQuery:
		if selected != "" {
			return &apperrors.ConflictError{Message: "awaiting_query cannot carry a selection"}
		}
	default:
		return &apperrors.ValidationError{Field: "stage", Message: fmt.Sprintf("unknown stage %q", stage)}
	}
	return nil
}
