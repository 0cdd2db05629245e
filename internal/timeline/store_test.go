package timeline

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/models"
)

var base = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

func msgAt(id string, sender int64, ts time.Time) models.Message {
	return models.Message{ID: id, SenderID: sender, Text: "body " + id, Timestamp: ts}
}

func ids(section models.Section) []string {
	out := make([]string, 0, len(section.Messages))
	for _, m := range section.Messages {
		out = append(out, m.ID)
	}
	return out
}

func TestInsertLivePrependsWithinDay(t *testing.T) {
	s := New(WithLocation(time.UTC))
	s.InsertLive(msgAt("a", 1, base))
	s.InsertLive(msgAt("b", 2, base.Add(time.Minute)))
	sections := s.InsertLive(msgAt("c", 1, base.Add(2*time.Minute)))

	require.Len(t, sections, 1)
	require.Equal(t, []string{"c", "b", "a"}, ids(sections[0]))
	require.Equal(t, time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), sections[0].DateKey)
	require.Equal(t, 3, s.Count())
}

func TestUpsertHistoryAppendsToTail(t *testing.T) {
	s := New(WithLocation(time.UTC))
	s.InsertLive(msgAt("live", 1, base))

	sections, total := s.UpsertHistory([]models.Message{
		msgAt("h1", 2, base.Add(-time.Hour)),
		msgAt("h2", 1, base.Add(-2*time.Hour)),
		msgAt("h3", 2, base.Add(-26*time.Hour)),
	})

	require.Equal(t, 4, total)
	require.Len(t, sections, 2)
	require.Equal(t, []string{"live", "h1", "h2"}, ids(sections[0]))
	require.Equal(t, []string{"h3"}, ids(sections[1]))
	require.True(t, sections[0].DateKey.After(sections[1].DateKey))
}

func TestSectionsSortedNewestDayFirstForAnyInsertOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		s := New(WithLocation(time.UTC))
		var inserted []string
		for i := 0; i < 40; i++ {
			ts := base.Add(time.Duration(rng.Intn(10*24)) * time.Hour)
			id := fmt.Sprintf("r%d-%d", round, i)
			inserted = append(inserted, id)
			s.InsertLive(msgAt(id, int64(1+rng.Intn(2)), ts))
		}

		sections := s.ToOrderedSections()
		total := 0
		for i, section := range sections {
			total += section.Len()
			if i > 0 {
				require.True(t, sections[i-1].DateKey.After(section.DateKey))
			}
			// Within a section, later inserts come first.
			pos := make(map[string]int, len(inserted))
			for idx, id := range inserted {
				pos[id] = idx
			}
			for j := 1; j < section.Len(); j++ {
				require.Greater(t, pos[section.Messages[j-1].ID], pos[section.Messages[j].ID])
			}
		}
		require.Equal(t, len(inserted), total)
		require.Equal(t, total, s.Count())
	}
}

func TestDuplicateIDsAreKeptWithoutDedupe(t *testing.T) {
	s := New(WithLocation(time.UTC))
	s.UpsertHistory([]models.Message{msgAt("x", 1, base)})
	s.InsertLive(msgAt("x", 1, base))

	require.Equal(t, 2, s.Count())
	require.True(t, s.Contains("x"))
}

func TestDeduplicationCountsDistinctIDs(t *testing.T) {
	s := New(WithLocation(time.UTC), WithDeduplication())
	s.UpsertHistory([]models.Message{msgAt("x", 1, base), msgAt("y", 2, base), msgAt("x", 1, base)})
	sections := s.InsertLive(msgAt("y", 2, base))

	require.Equal(t, 2, s.Count())
	require.Len(t, sections, 1)
	require.Equal(t, []string{"x", "y"}, ids(sections[0]))
}

func TestBucketingFollowsLocationAtInsert(t *testing.T) {
	tz := time.FixedZone("UTC+2", 2*3600)
	s := New(WithLocation(tz))
	late := time.Date(2026, 2, 9, 23, 0, 0, 0, time.UTC)
	sections := s.InsertLive(msgAt("late", 1, late))

	require.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, tz), sections[0].DateKey)
}

func TestToOrderedSectionsReturnsCopies(t *testing.T) {
	s := New(WithLocation(time.UTC))
	s.InsertLive(msgAt("a", 1, base))

	first := s.ToOrderedSections()
	first[0].Messages[0].Text = "mutated"
	first[0].Messages = append(first[0].Messages, msgAt("b", 1, base))

	again := s.ToOrderedSections()
	require.Equal(t, "body a", again[0].Messages[0].Text)
	require.Equal(t, 1, again[0].Len())
}

func TestMarkReadFlipsOnlyUnreadFromSender(t *testing.T) {
	s := New(WithLocation(time.UTC))
	read := msgAt("r", 2, base)
	read.IsRead = true
	s.UpsertHistory([]models.Message{msgAt("own", 1, base), msgAt("peer", 2, base), read})

	require.Equal(t, 1, s.MarkRead(2))
	require.Equal(t, 0, s.MarkRead(2))

	for _, m := range s.ToOrderedSections()[0].Messages {
		switch m.ID {
		case "own":
			require.False(t, m.IsRead)
		default:
			require.True(t, m.IsRead)
		}
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := New()
	s.InsertLive(msgAt("a", 1, base))
	s.Reset()

	require.Zero(t, s.Count())
	require.Empty(t, s.ToOrderedSections())
	require.False(t, s.Contains("a"))
}
