// Package wire encodes and classifies the typed JSON frames exchanged with
// the chat server.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tOgg1/chatsync/internal/models"
)

// Frame type discriminators.
const (
	TypeHistory = "history"
	TypeMessage = "message"
	TypeSuccess = "success"
	TypeRead    = "read"
)

// ErrMalformedFrame is returned when an inbound payload cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Kind classifies an inbound frame.
type Kind string

const (
	KindHistory Kind = TypeHistory
	KindMessage Kind = TypeMessage
	KindSuccess Kind = TypeSuccess
	KindRead    Kind = TypeRead
	KindUnknown Kind = ""
)

// Inbound is a decoded server frame. Only the fields relevant to Kind are set.
type Inbound struct {
	Kind Kind
	// Type is the raw discriminator, kept for unknown frames.
	Type string

	// History holds the page carried by a history frame.
	History []models.Message
	// Message is the live message carried by a message frame.
	Message models.Message

	// ID is the acknowledged id of a success frame or the id of a read frame.
	ID string
	// PeerID is the uid of a read frame.
	PeerID int64
}

// IsReadAck reports whether a success frame acknowledges a read receipt.
func (f Inbound) IsReadAck() bool {
	return f.Kind == KindSuccess && models.IsReadAck(f.ID)
}

// Outbound is a frame the client can send. The interface is sealed; use the
// frame types declared in this package.
type Outbound interface {
	FrameType() string
	withType() Outbound
}

// HistoryRequest asks for a page of older messages exchanged with UID.
type HistoryRequest struct {
	Type   string `json:"type"`
	UID    int64  `json:"uid"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (f HistoryRequest) FrameType() string { return TypeHistory }

func (f HistoryRequest) withType() Outbound {
	f.Type = TypeHistory
	return f
}

// OutgoingMessage delivers Text to the peer UID under the client-derived ID.
type OutgoingMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	UID  int64  `json:"uid"`
	ID   string `json:"id"`
}

func (f OutgoingMessage) FrameType() string { return TypeMessage }

func (f OutgoingMessage) withType() Outbound {
	f.Type = TypeMessage
	return f
}

// ReadReceipt marks every message from UID as read server-side.
type ReadReceipt struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	UID  int64  `json:"uid"`
}

// NewReadReceipt builds the read frame addressed to peerID.
func NewReadReceipt(peerID int64) ReadReceipt {
	return ReadReceipt{ID: models.ReadAckID(peerID), UID: peerID}
}

func (f ReadReceipt) FrameType() string { return TypeRead }

func (f ReadReceipt) withType() Outbound {
	f.Type = TypeRead
	return f
}

// Ack confirms delivery of the message with ID.
type Ack struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (f Ack) FrameType() string { return TypeSuccess }

func (f Ack) withType() Outbound {
	f.Type = TypeSuccess
	return f
}

// Encode serializes an outbound frame with its type discriminator set.
func Encode(frame Outbound) ([]byte, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	data, err := json.Marshal(frame.withType())
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", frame.FrameType(), err)
	}
	return data, nil
}
