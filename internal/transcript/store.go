package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// Utterance is one finalized unit of recognized or synthesized speech.
// Immutable once created.
type Utterance struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds the time-ascending transcript of one session.
type Store struct {
	mu    sync.RWMutex
	items []Utterance
}

func NewStore() *Store { return &Store{} }

func (s *Store) Append(speaker Speaker, text string) Utterance {
	u := Utterance{
		ID:        uuid.New().String(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	s.mu.Lock()
	s.items = append(s.items, u)
	s.mu.Unlock()
	return u
}

// List returns a copy to avoid external mutation.
func (s *Store) List() []Utterance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Utterance, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}
