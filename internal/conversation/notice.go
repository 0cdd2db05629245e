package conversation

import "fmt"

// Notice is a transient user-visible failure.
type Notice int

const (
	// NoticeServerError reports a frame the client could not parse.
	NoticeServerError Notice = iota + 1
	// NoticeNetworkError reports a lost channel.
	NoticeNetworkError
	// NoticeSendFailed reports a message that could not be transmitted.
	NoticeSendFailed
)

func (n Notice) String() string {
	switch n {
	case NoticeServerError:
		return "Server error"
	case NoticeNetworkError:
		return "Network error"
	case NoticeSendFailed:
		return "Message not sent"
	default:
		return fmt.Sprintf("notice(%d)", int(n))
	}
}
