// Package memory implements an in-memory property store for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chicagolots/lotbot/internal/lotbot"
)

// PropertyStore keeps property records and post history in memory.
type PropertyStore struct {
	mu      sync.Mutex
	props   map[string]*lotbot.Property
	history map[string]lotbot.PostHistoryEntry
}

// NewPropertyStore creates an empty in-memory store.
func NewPropertyStore() *PropertyStore {
	return &PropertyStore{
		props:   make(map[string]*lotbot.Property),
		history: make(map[string]lotbot.PostHistoryEntry),
	}
}

// NextEligible returns up to limit unposted properties with fewer than
// lotbot.MaxErrors failures, ordered by ascending PIN.
func (s *PropertyStore) NextEligible(_ context.Context, limit int) ([]lotbot.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pins := make([]string, 0, len(s.props))
	for pin, p := range s.props {
		if !p.Posted && p.ErrorCount < lotbot.MaxErrors {
			pins = append(pins, pin)
		}
	}
	sort.Strings(pins)
	if limit < len(pins) {
		pins = pins[:limit]
	}

	out := make([]lotbot.Property, 0, len(pins))
	for _, pin := range pins {
		out = append(out, clone(s.props[pin]))
	}
	return out, nil
}

// RecordSuccess marks the property posted and appends the history entry.
func (s *PropertyStore) RecordSuccess(_ context.Context, pin, postID, imagePath string, postedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.props[pin]
	if !ok {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: errors.New("unknown PIN")}
	}
	if _, exists := s.history[pin]; exists {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: errors.New("post history entry already exists")}
	}
	p.Posted = true
	ts := postedAt
	p.PostedAt = &ts
	s.history[pin] = lotbot.PostHistoryEntry{
		PIN:       pin,
		PostedAt:  postedAt,
		PostID:    postID,
		ImagePath: imagePath,
	}
	return nil
}

// RecordError increments the error counter and overwrites the last error.
func (s *PropertyStore) RecordError(_ context.Context, pin, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.props[pin]; ok {
		p.ErrorCount++
		p.LastError = message
	}
	return nil
}

// SaveCoordinates caches resolved coordinates on the property record.
func (s *PropertyStore) SaveCoordinates(_ context.Context, pin string, coords lotbot.Coordinates) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.props[pin]; ok {
		c := coords
		p.Coordinates = &c
	}
	return nil
}

// AddProperty upserts the record, preserving any existing processing state.
func (s *PropertyStore) AddProperty(_ context.Context, p lotbot.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.props[p.PIN]; ok {
		existing.Address = p.Address
		existing.Coordinates = nil
		if p.Coordinates != nil {
			c := *p.Coordinates
			existing.Coordinates = &c
		}
		return nil
	}
	np := clone(&p)
	s.props[p.PIN] = &np
	return nil
}

// Statistics returns the aggregate processing state.
func (s *PropertyStore) Statistics(_ context.Context) (lotbot.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := lotbot.Statistics{Total: len(s.props)}
	for _, p := range s.props {
		switch {
		case p.Posted:
			stats.Posted++
		case p.ErrorCount >= lotbot.MaxErrors:
			stats.PermanentlyFailed++
		}
	}
	stats.Remaining = stats.Total - stats.Posted - stats.PermanentlyFailed
	return stats, nil
}

// History returns the post history entry for a PIN, if any.
func (s *PropertyStore) History(pin string) (lotbot.PostHistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.history[pin]
	return entry, ok
}

// Close is a no-op for the in-memory store.
func (s *PropertyStore) Close() {}

func clone(p *lotbot.Property) lotbot.Property {
	out := *p
	if p.Coordinates != nil {
		c := *p.Coordinates
		out.Coordinates = &c
	}
	if p.PostedAt != nil {
		ts := *p.PostedAt
		out.PostedAt = &ts
	}
	return out
}
