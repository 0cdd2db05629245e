package chattui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) renderHeader() string {
	left := "chatsync"
	center := fmt.Sprintf("conversation with %d", m.session.PeerID())
	right := m.connectionStatus()
	line := joinHeader(left, center, right, maxInt(0, m.width-2))
	return m.theme.Header().Width(maxInt(0, m.width)).Render(line)
}

func (m *Model) renderFooter() string {
	base := "Enter send  ↑/↓ PgUp/PgDn scroll  End latest  Ctrl+R mark read  Esc quit"
	line := truncate(base, maxInt(0, m.width-2))
	if m.notice != "" {
		line = m.theme.Notice().Render(truncate(m.notice, maxInt(0, m.width-2)))
	}
	return m.theme.Footer().Width(maxInt(0, m.width)).Render(line)
}

func (m *Model) renderInput() string {
	prompt := "> " + m.input
	return m.theme.Input().Width(maxInt(0, m.width)).Render(truncateLeft(prompt, maxInt(0, m.width)))
}

func (m *Model) connectionStatus() string {
	switch {
	case !m.online:
		return "connecting"
	case m.session.Loading():
		return "loading"
	default:
		return "online"
	}
}

func joinHeader(left, center, right string, width int) string {
	left = strings.TrimSpace(left)
	center = strings.TrimSpace(center)
	right = strings.TrimSpace(right)
	if width <= 0 {
		return left
	}

	space := width - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right)
	if space < 2 {
		line := left
		if right != "" {
			line = left + "  " + right
		}
		return truncate(line, width)
	}

	leftGap := space / 2
	rightGap := space - leftGap
	return truncate(left+strings.Repeat(" ", leftGap)+center+strings.Repeat(" ", rightGap)+right, width)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= 3 || len(r) <= 3 {
		return string(r[:minInt(max, len(r))])
	}
	if len(r) > max-3 {
		r = r[:max-3]
	}
	return string(r) + "..."
}

// truncateLeft keeps the end of s, which is where the cursor is.
func truncateLeft(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
