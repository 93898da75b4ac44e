package relay

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrTranscriptExists is returned by Create when the connection id is already registered.
	ErrTranscriptExists = errors.New("transcript already exists")
	// ErrTranscriptNotFound indicates a lifecycle bug: the session ended or was never started.
	// Callers must abort the operation rather than fabricate a transcript.
	ErrTranscriptNotFound = errors.New("transcript not found")
)

// transcriptEntry holds one connection's turns behind its own lock so appends on
// unrelated connections never contend.
type transcriptEntry struct {
	mu    sync.Mutex
	turns []Turn
}

// TranscriptStore maps connection ids to bounded, ordered transcripts. The store-level
// lock guards only map membership; per-entry mutation takes the entry lock.
type TranscriptStore struct {
	mu           sync.RWMutex
	entries      map[string]*transcriptEntry
	maxLen       int
	systemPrompt string
}

// NewTranscriptStore builds an empty store. maxLen bounds every transcript's length
// (minimum 3: the system turn plus one exchange).
func NewTranscriptStore(maxLen int, systemPrompt string) *TranscriptStore {
	if maxLen < 3 {
		maxLen = 3
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &TranscriptStore{
		entries:      map[string]*transcriptEntry{},
		maxLen:       maxLen,
		systemPrompt: systemPrompt,
	}
}

// Create registers connID with a fresh transcript seeded with the system turn.
// An already-registered id is left untouched and reported as ErrTranscriptExists.
func (s *TranscriptStore) Create(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[connID]; ok {
		return errors.Wrap(ErrTranscriptExists, connID)
	}
	s.entries[connID] = &transcriptEntry{
		turns: []Turn{{Role: RoleSystem, Content: s.systemPrompt}},
	}
	return nil
}

// Get returns a snapshot copy of the transcript for connID.
func (s *TranscriptStore) Get(connID string) ([]Turn, error) {
	s.mu.RLock()
	e, ok := s.entries[connID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrTranscriptNotFound, connID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Append adds a turn at the tail and trims the transcript back under the length
// bound, evicting the oldest non-system pair and keeping the system turn pinned
// at index 0.
func (s *TranscriptStore) Append(connID string, turn Turn) error {
	s.mu.RLock()
	e, ok := s.entries[connID]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrTranscriptNotFound, connID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = trimTurns(append(e.turns, turn), s.maxLen)
	return nil
}

// Delete drops the transcript for connID. Deleting an unknown id is a no-op.
func (s *TranscriptStore) Delete(connID string) {
	s.mu.Lock()
	delete(s.entries, connID)
	s.mu.Unlock()
}

// Len reports the number of live transcripts.
func (s *TranscriptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs lists the connection ids with a live transcript, in no particular order.
func (s *TranscriptStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}
