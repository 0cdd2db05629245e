// Package chattui is a bubbletea front end for one conversation.
package chattui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/chatsync/internal/chattui/styles"
	"github.com/tOgg1/chatsync/internal/conversation"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/outbox"
)

const noticeDuration = 2 * time.Second

// Session is the conversation surface the TUI drives.
type Session interface {
	SendMessage(text string) (models.Message, error)
	MarkAsRead() error
	RequestMoreIfNeeded(viewportAtEnd bool) (bool, error)
	SetForeground(on bool)
	Sections() []models.Section
	IsPending(id string) bool
	Loading() bool
	FullyLoaded() bool
	UserID() int64
	PeerID() int64
}

type Config struct {
	Theme    string
	Location *time.Location
	Now      func() time.Time
}

type noticeClearMsg struct {
	until time.Time
}

type Model struct {
	session Session
	bridge  *Bridge
	theme   styles.Theme
	loc     *time.Location
	now     func() time.Time

	width  int
	height int

	sections []models.Section
	input    string
	scroll   int // lines from the bottom
	online   bool

	notice      string
	noticeUntil time.Time
}

func NewModel(session Session, bridge *Bridge, cfg Config) (*Model, error) {
	if session == nil {
		return nil, errors.New("chattui: nil session")
	}
	if bridge == nil {
		bridge = NewBridge()
	}
	theme := strings.TrimSpace(cfg.Theme)
	if theme == "" {
		theme = styles.DefaultTheme.Name
	}
	if _, ok := styles.Themes[theme]; !ok {
		return nil, fmt.Errorf("invalid theme %q", cfg.Theme)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Model{
		session:  session,
		bridge:   bridge,
		theme:    styles.Lookup(theme),
		loc:      cfg.Location,
		now:      cfg.Now,
		sections: session.Sections(),
	}, nil
}

func Run(session Session, bridge *Bridge, cfg Config) error {
	model, err := NewModel(session, bridge, cfg)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus())
	_, err = program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.bridge.waitCmd()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.clampScroll()
		return m, nil
	case tea.FocusMsg:
		m.session.SetForeground(true)
		return m, nil
	case tea.BlurMsg:
		m.session.SetForeground(false)
		return m, nil
	case timelineChangedMsg:
		m.sections = m.session.Sections()
		m.clampScroll()
		return m, m.bridge.waitCmd()
	case connectedMsg:
		m.online = true
		return m, m.bridge.waitCmd()
	case noticeMsg:
		if typed.notice == conversation.NoticeNetworkError {
			m.online = false
		}
		return m, tea.Batch(m.bridge.waitCmd(), m.showNotice(typed.notice.String()))
	case noticeClearMsg:
		if !m.noticeUntil.IsZero() && !typed.until.Before(m.noticeUntil) {
			m.notice = ""
			m.noticeUntil = time.Time{}
		}
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return nil
	case tea.KeyCtrlU:
		m.input = ""
		return nil
	case tea.KeyCtrlR:
		if err := m.session.MarkAsRead(); err != nil {
			return m.showNotice(err.Error())
		}
		return nil
	case tea.KeyUp:
		return m.scrollBy(1)
	case tea.KeyPgUp:
		return m.scrollBy(maxInt(1, m.bodyHeight()-1))
	case tea.KeyDown:
		return m.scrollBy(-1)
	case tea.KeyPgDown:
		return m.scrollBy(-maxInt(1, m.bodyHeight()-1))
	case tea.KeyEnd:
		m.scroll = 0
		return nil
	case tea.KeySpace:
		m.input += " "
		return nil
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return nil
	}
	return nil
}

func (m *Model) submit() tea.Cmd {
	text := m.input
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := m.session.SendMessage(text)
	if errors.Is(err, outbox.ErrEmptyMessage) {
		return nil
	}
	// A failed send stays in the timeline as pending.
	m.input = ""
	m.scroll = 0
	m.sections = m.session.Sections()
	return nil
}

// scrollBy moves the viewport; reaching the oldest line asks for more history.
func (m *Model) scrollBy(delta int) tea.Cmd {
	m.scroll += delta
	m.clampScroll()
	if delta <= 0 || m.scroll < m.maxScroll() {
		return nil
	}
	if _, err := m.session.RequestMoreIfNeeded(true); err != nil {
		return m.showNotice(err.Error())
	}
	return nil
}

func (m *Model) showNotice(text string) tea.Cmd {
	until := m.now().Add(noticeDuration)
	m.notice = text
	m.noticeUntil = until
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg { return noticeClearMsg{until: until} })
}

func (m *Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()
	input := m.renderInput()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - lipgloss.Height(input)
	body := m.renderBody(maxInt(0, bodyHeight))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, footer)
}

func (m *Model) bodyHeight() int {
	// header, footer and the bordered input line
	return maxInt(0, m.height-4)
}

func (m *Model) maxScroll() int {
	return maxInt(0, len(m.timelineLines())-m.bodyHeight())
}

func (m *Model) clampScroll() {
	m.scroll = clampInt(m.scroll, 0, m.maxScroll())
}
