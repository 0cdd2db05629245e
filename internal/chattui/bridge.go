package chattui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/chatsync/internal/conversation"
	"github.com/tOgg1/chatsync/internal/models"
)

const bridgeBuffer = 256

// timelineChangedMsg asks the model to re-read the session's sections.
type timelineChangedMsg struct{}

// noticeMsg carries a conversation notice.
type noticeMsg struct {
	notice conversation.Notice
	err    error
}

// connectedMsg marks the conversation as receiving frames.
type connectedMsg struct{}

// Bridge turns conversation callbacks into tea messages. Callbacks never
// block; when the buffer is full a pending refresh already covers the change.
type Bridge struct {
	updates chan tea.Msg
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{updates: make(chan tea.Msg, bridgeBuffer)}
}

// Callbacks returns conversation callbacks feeding the bridge.
func (b *Bridge) Callbacks() conversation.Callbacks {
	return conversation.Callbacks{
		OnConnect: func() { b.push(connectedMsg{}) },
		OnMessagesLoad: func([]models.Section, int) {
			b.push(connectedMsg{})
			b.push(timelineChangedMsg{})
		},
		OnMessageReceive: func(models.Message, []models.Section) {
			b.push(connectedMsg{})
			b.push(timelineChangedMsg{})
		},
		OnMessageSent:  func(string) { b.push(timelineChangedMsg{}) },
		OnMessagesRead: func(int, []models.Section) { b.push(timelineChangedMsg{}) },
		OnNotice: func(n conversation.Notice, err error) {
			b.push(noticeMsg{notice: n, err: err})
		},
	}
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.updates <- msg:
	default:
	}
}

func (b *Bridge) waitCmd() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-b.updates
		if !ok {
			return nil
		}
		return msg
	}
}
