package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/nimbusline/weatherline/internal/domain"
)

// UserStore is the concurrency-safe credential store. A single coarse mutex
// guards the map; the check-then-insert of registration and the persistence
// flush both happen inside it, so two concurrent registrations of the same
// username can never both succeed and flushes never interleave.
type UserStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	persist func([]domain.User) error
	logger  *slog.Logger
}

// NewUserStore creates a UserStore. persist, if non-nil, is invoked with a
// full snapshot after every successful insert; persist failures are logged
// and do not roll back the in-memory insert (at-least-once toward the
// backing file).
func NewUserStore(persist func([]domain.User) error, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{
		users:   make(map[string]domain.User),
		persist: persist,
		logger:  logger,
	}
}

// Find returns the user for a username, if present.
func (s *UserStore) Find(username string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	return u, ok
}

// InsertIfAbsent atomically inserts a new user. It reports false, without
// modifying anything, when the username is already taken.
func (s *UserStore) InsertIfAbsent(user domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return false
	}
	s.users[user.Username] = user
	s.flushLocked()
	return true
}

// Upsert inserts or replaces a user record. This is the bulk-import path
// used at seed load, which deliberately differs from InsertIfAbsent:
// re-imported usernames have their password and role updated in place.
func (s *UserStore) Upsert(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.Username] = user
}

// SnapshotAll returns all users sorted by username.
func (s *UserStore) SnapshotAll() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}

func (s *UserStore) snapshotLocked() []domain.User {
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *UserStore) flushLocked() {
	if s.persist == nil {
		return
	}
	if err := s.persist(s.snapshotLocked()); err != nil {
		s.logger.Error("user persistence flush failed", "error", err)
	}
}
