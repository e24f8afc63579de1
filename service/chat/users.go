package chat

import (
	"context"

	"github.com/pkg/errors"
)

// EnsureUserLoaded returns the cached profile for userID, fetching it from
// the REST collaborator on first reference. Concurrent calls for the same
// id share one in-flight fetch. Entries are never evicted within a session.
func (s *Store) EnsureUserLoaded(ctx context.Context, userID int64) (*User, error) {
	s.mu.Lock()
	if u, ok := s.users[userID]; ok {
		out := *u
		s.mu.Unlock()
		return &out, nil
	}
	if ch, ok := s.inflight[userID]; ok {
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		u, ok := s.users[userID]
		s.mu.Unlock()
		if !ok {
			return nil, errors.Errorf("user %d: shared fetch failed", userID)
		}
		out := *u
		return &out, nil
	}

	ch := make(chan struct{})
	s.inflight[userID] = ch
	s.mu.Unlock()

	info, err := s.api.GetUserInfo(ctx, userID)

	s.mu.Lock()
	delete(s.inflight, userID)
	if err == nil {
		s.users[userID] = userFromInfo(info)
	}
	close(ch)
	var out *User
	if u, ok := s.users[userID]; ok {
		cp := *u
		out = &cp
	}
	s.mu.Unlock()

	if err != nil {
		return nil, errors.WithMessagef(err, "fetch user %d", userID)
	}
	return out, nil
}

// UserFor reads the directory cache without triggering a fetch.
func (s *Store) UserFor(userID int64) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return *u, true
	}
	return User{}, false
}
