package policy

import (
	"fmt"
	"strings"
	"sync"
)

// How the user appears to friends while masking is enabled.
type Status int

const (
	Offline Status = iota
	Online
	Mobile
)

// Wire token used in <show> and the game st elements.
func (s Status) Token() string {
	switch s {
	case Online:
		return "chat"
	case Mobile:
		return "mobile"
	default:
		return "offline"
	}
}

// Human readable form used in messages from the fake contact.
func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return s.Token()
}

// Accepts either the wire token or the human readable form, case-insensitive.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat", "online":
		return Online, nil
	case "mobile":
		return Mobile, nil
	case "offline":
		return Offline, nil
	}
	return Offline, fmt.Errorf("unknown status %q", s)
}

// Immutable snapshot of the settings every session reads.
type Policy struct {
	Enabled   bool
	Status    Status
	LobbyChat bool
}

func Default() Policy {
	return Policy{Enabled: true, Status: Offline, LobbyChat: true}
}

// The status presence is rewritten to. Disabling masking shows the user online.
func (p Policy) Target() Status {
	if !p.Enabled {
		return Online
	}
	return p.Status
}

// Holds the current Policy. Readers get copies, so a snapshot
// never changes underneath a rewrite in progress.
type Store struct {
	mu      sync.RWMutex
	current Policy
}

func NewStore(initial Policy) *Store {
	return &Store{current: initial}
}

func (s *Store) Load() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Applies f to the current policy and stores the result.
// Returns the previous and the new policy.
func (s *Store) Update(f func(Policy) Policy) (Policy, Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current
	s.current = f(old)
	return old, s.current
}
