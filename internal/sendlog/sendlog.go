// Package sendlog records delivered messages per campaign so that a
// resubmitted campaign skips recipients that already received it.
package sendlog

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Entry is one delivered message.
type Entry struct {
	CampaignID string
	Email      string
	Provider   string
	MessageID  string
	SentAt     time.Time
}

// Store persists delivered messages.
type Store interface {
	// Delivered returns the normalised addresses already sent for campaignID.
	Delivered(ctx context.Context, campaignID string) (map[string]struct{}, error)
	// Record stores e. Recording the same campaign/email twice is not an error.
	Record(ctx context.Context, e Entry) error
}

// NormalizeEmail is the key used for duplicate detection.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryStore keeps the log in process memory. Used locally and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[string]Entry)}
}

func (s *MemoryStore) Delivered(_ context.Context, campaignID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.entries[campaignID]))
	for email := range s.entries[campaignID] {
		out[email] = struct{}{}
	}
	return out, nil
}

func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEmail, ok := s.entries[e.CampaignID]
	if !ok {
		byEmail = make(map[string]Entry)
		s.entries[e.CampaignID] = byEmail
	}
	key := NormalizeEmail(e.Email)
	if _, dup := byEmail[key]; !dup {
		byEmail[key] = e
	}
	return nil
}
