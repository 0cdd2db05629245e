package conversation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/pagination"
)

// Callbacks are invoked outside the conversation lock, on the goroutine that
// delivered the triggering event or intent. Nil callbacks are skipped.
type Callbacks struct {
	// OnConnect fires each time the channel opens, after the initial history
	// request (if any) was sent.
	OnConnect func()
	// OnMessagesLoad fires after a history page was applied.
	OnMessagesLoad func(sections []models.Section, count int)
	// OnMessageReceive fires for each live message from the server.
	OnMessageReceive func(msg models.Message, sections []models.Section)
	// OnMessageSent fires when a pending message is acknowledged.
	OnMessageSent func(id string)
	// OnMessagesRead fires when the peer read our messages.
	OnMessagesRead func(changed int, sections []models.Section)
	// OnNotice reports a user-visible failure.
	OnNotice func(notice Notice, err error)
}

// Options configure a conversation.
type Options struct {
	UserID int64
	PeerID int64

	// PageLimit defaults to pagination.DefaultPageLimit.
	PageLimit int
	// MarkReadOnConnect sends a read receipt on every connect.
	MarkReadOnConnect bool
	// Dedupe skips messages whose id is already in the timeline.
	Dedupe bool
	// StartInBackground suppresses read receipts until SetForeground(true).
	StartInBackground bool
	// Location buckets messages into days. Defaults to time.Local.
	Location *time.Location

	Callbacks Callbacks

	Clock   func() time.Time
	Logger  *zerolog.Logger
	Metrics *metrics.Collector
}

// Validate checks identifiers and limits.
func (o Options) Validate() error {
	errs := &models.ValidationErrors{}
	if o.UserID <= 0 {
		errs.Add("user_id", models.ErrInvalidUserID)
	}
	if o.PeerID <= 0 {
		errs.Add("peer_id", models.ErrInvalidPeerID)
	}
	if o.UserID > 0 && o.UserID == o.PeerID {
		errs.Add("peer_id", models.ErrSelfConversation)
	}
	if o.PageLimit < 0 {
		errs.Add("page_limit", models.ErrInvalidPageLimit)
	}
	return errs.Err()
}

func (o Options) withDefaults() Options {
	if o.PageLimit == 0 {
		o.PageLimit = pagination.DefaultPageLimit
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
