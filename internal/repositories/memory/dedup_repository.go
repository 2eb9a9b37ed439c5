package memory

import (
	"context"
	"time"
)

// DedupRepository is the in-memory repositories.WebhookDedupRepository
type DedupRepository struct {
	s *Store
}

// FirstSeen reports whether key is new, remembering it for ttl
func (r *DedupRepository) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpDedupFirstSeen); err != nil {
		return false, err
	}
	now := time.Now()
	if expires, ok := r.s.seen[key]; ok && now.Before(expires) {
		return false, nil
	}
	r.s.seen[key] = now.Add(ttl)
	return true, nil
}

// Forget drops key
func (r *DedupRepository) Forget(ctx context.Context, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.seen, key)
	return nil
}
