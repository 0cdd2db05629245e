package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalMessageIDConcatenatesSenderPeerAndMillis(t *testing.T) {
	sentAt := time.UnixMilli(1700000000123)
	require.Equal(t, "121700000000123", LocalMessageID(1, 2, sentAt))
	require.Equal(t, "4271700000000123", LocalMessageID(42, 7, sentAt))
}

func TestReadAckID(t *testing.T) {
	require.Equal(t, "READ-7", ReadAckID(7))
	require.True(t, IsReadAck("READ-7"))
	require.False(t, IsReadAck("121700000000123"))
	require.False(t, IsReadAck("read-7"))
}

func TestDayKeyUsesLocation(t *testing.T) {
	oslo := time.FixedZone("CET", 3600)
	ts := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)

	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), DayKey(ts, time.UTC))
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, oslo), DayKey(ts, oslo))
}

func TestSectionCloneIsDeep(t *testing.T) {
	s := Section{DateKey: time.Unix(0, 0), Messages: []Message{{ID: "a"}}}
	c := s.Clone()
	c.Messages[0].IsRead = true
	require.False(t, s.Messages[0].IsRead)
	require.Equal(t, 1, c.Len())
}
