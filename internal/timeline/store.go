// Package timeline keeps a conversation's messages grouped into day sections.
package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/tOgg1/chatsync/internal/models"
)

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the location used to bucket messages into days.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDeduplication makes the store skip messages whose id it already holds.
func WithDeduplication() Option {
	return func(s *Store) {
		s.dedupe = true
	}
}

// Store maps day keys to sections and keeps the derived, newest-day-first
// section list current after every mutation.
type Store struct {
	mu       sync.RWMutex
	loc      *time.Location
	dedupe   bool
	sections map[int64]*models.Section
	ordered  []*models.Section
	ids      map[string]int
	count    int
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		loc:      time.Local,
		sections: make(map[int64]*models.Section),
		ids:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertHistory appends a page of older messages to the tail of their
// sections, keeping the server's order within the batch. It returns the
// ordered sections and the new total count.
func (s *Store) UpsertHistory(messages []models.Message) ([]models.Section, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range messages {
		if s.skipLocked(msg.ID) {
			continue
		}
		section := s.sectionLocked(msg.Timestamp)
		section.Messages = append(section.Messages, msg)
		s.trackLocked(msg.ID)
	}
	return s.snapshotLocked(), s.count
}

// InsertLive places a newly received or sent message at the newest position
// of its section.
func (s *Store) InsertLive(msg models.Message) []models.Section {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.skipLocked(msg.ID) {
		section := s.sectionLocked(msg.Timestamp)
		section.Messages = append(section.Messages, models.Message{})
		copy(section.Messages[1:], section.Messages)
		section.Messages[0] = msg
		s.trackLocked(msg.ID)
	}
	return s.snapshotLocked()
}

// MarkRead flips IsRead on every unread message from senderID and returns
// how many changed.
func (s *Store) MarkRead(senderID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, section := range s.ordered {
		for i := range section.Messages {
			msg := &section.Messages[i]
			if msg.SenderID == senderID && !msg.IsRead {
				msg.IsRead = true
				changed++
			}
		}
	}
	return changed
}

// ToOrderedSections returns a copy of the sections as committed at call time.
func (s *Store) ToOrderedSections() []models.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Count returns the total number of messages across sections.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Contains reports whether a message with id has been inserted.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[id] > 0
}

// Reset drops every section.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = make(map[int64]*models.Section)
	s.ordered = nil
	s.ids = make(map[string]int)
	s.count = 0
}

func (s *Store) skipLocked(id string) bool {
	return s.dedupe && id != "" && s.ids[id] > 0
}

func (s *Store) trackLocked(id string) {
	s.count++
	if id != "" {
		s.ids[id]++
	}
}

// sectionLocked returns the section for ts's local day, creating it and
// splicing it into the ordered list when missing.
func (s *Store) sectionLocked(ts time.Time) *models.Section {
	key := models.DayKey(ts, s.loc)
	if section, ok := s.sections[key.Unix()]; ok {
		return section
	}

	section := &models.Section{DateKey: key}
	s.sections[key.Unix()] = section

	idx := sort.Search(len(s.ordered), func(i int) bool {
		return s.ordered[i].DateKey.Before(key)
	})
	s.ordered = append(s.ordered, nil)
	copy(s.ordered[idx+1:], s.ordered[idx:])
	s.ordered[idx] = section
	return section
}

func (s *Store) snapshotLocked() []models.Section {
	out := make([]models.Section, len(s.ordered))
	for i, section := range s.ordered {
		out[i] = section.Clone()
	}
	return out
}
