// Package models defines the conversation data types shared by the sync core.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReadAckPrefix marks ids of read-receipt frames. Acks carrying it never
// reconcile against pending sends.
const ReadAckPrefix = "READ-"

// Message is one chat message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	SenderID  int64     `json:"uid"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"time"`
	IsRead    bool      `json:"isRead"`
}

// LocalMessageID derives the id of a locally-originated message so later
// frames referencing it can be recognized: sender, peer, then send time in
// epoch milliseconds, concatenated.
func LocalMessageID(senderID, peerID int64, sentAt time.Time) string {
	return fmt.Sprintf("%d%d%d", senderID, peerID, sentAt.UnixMilli())
}

// ReadAckID returns the id used by read frames addressed to peerID.
func ReadAckID(peerID int64) string {
	return ReadAckPrefix + strconv.FormatInt(peerID, 10)
}

// IsReadAck reports whether id belongs to a read-receipt frame.
func IsReadAck(id string) bool {
	return strings.HasPrefix(id, ReadAckPrefix)
}

// IsOwn reports whether the message was sent by userID.
func (m Message) IsOwn(userID int64) bool {
	return m.SenderID == userID
}
