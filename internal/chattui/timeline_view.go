package chattui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/chatsync/internal/models"
)

const (
	markPending = "…"
	markSent    = "✓"
	markRead    = "✓✓"
)

// timelineLines flattens the sections oldest first, as a chat reads top to
// bottom.
func (m *Model) timelineLines() []string {
	var lines []string
	if m.session.FullyLoaded() {
		lines = append(lines, m.theme.Muted().Render("· beginning of conversation ·"))
	} else if m.session.Loading() {
		lines = append(lines, m.theme.Muted().Render("· loading ·"))
	}

	for i := len(m.sections) - 1; i >= 0; i-- {
		section := m.sections[i]
		lines = append(lines, m.theme.DayDivider().Render("── "+m.dayLabel(section)+" ──"))
		for j := len(section.Messages) - 1; j >= 0; j-- {
			lines = append(lines, m.messageLine(section.Messages[j]))
		}
	}
	return lines
}

func (m *Model) dayLabel(section models.Section) string {
	today := models.DayKey(m.now(), m.loc)
	day := models.DayKey(section.DateKey, m.loc)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Mon, 2 Jan 2006")
	}
}

func (m *Model) messageLine(msg models.Message) string {
	own := msg.IsOwn(m.session.UserID())
	author := "them"
	if own {
		author = "me"
	}
	stamp := m.theme.Muted().Render(msg.Timestamp.In(m.loc).Format("15:04"))
	line := stamp + " " + m.theme.Author(own).Render(author) + " " + strings.ReplaceAll(msg.Text, "\n", " ")
	if own {
		pending := m.session.IsPending(msg.ID)
		mark := markSent
		switch {
		case pending:
			mark = markPending
		case msg.IsRead:
			mark = markRead
		}
		line += " " + m.theme.Delivery(pending).Render(mark)
	}
	return line
}

func (m *Model) renderBody(height int) string {
	if height <= 0 {
		return ""
	}
	lines := m.timelineLines()
	end := len(lines) - m.scroll
	start := maxInt(0, end-height)
	window := lines[start:maxInt(start, end)]

	clip := lipgloss.NewStyle().MaxWidth(maxInt(1, m.width))
	out := make([]string, 0, height)
	for i := len(window); i < height; i++ {
		out = append(out, "")
	}
	for _, line := range window {
		out = append(out, clip.Render(line))
	}
	return strings.Join(out, "\n")
}
