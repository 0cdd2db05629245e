package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeSetsTypeDiscriminator(t *testing.T) {
	tests := []struct {
		name  string
		frame Outbound
		want  string
	}{
		{
			name:  "history request keeps zero offset",
			frame: HistoryRequest{UID: 2, Offset: 0, Limit: 30},
			want:  `{"type":"history","uid":2,"offset":0,"limit":30}`,
		},
		{
			name:  "message",
			frame: OutgoingMessage{Text: "hi", UID: 2, ID: "121700000000000"},
			want:  `{"type":"message","text":"hi","uid":2,"id":"121700000000000"}`,
		},
		{
			name:  "read receipt",
			frame: NewReadReceipt(2),
			want:  `{"type":"read","id":"READ-2","uid":2}`,
		},
		{
			name:  "ack ignores caller supplied type",
			frame: Ack{Type: "bogus", ID: "m1"},
			want:  `{"type":"success","id":"m1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.frame)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	require.Error(t, err)
}

func TestDecodeHistory(t *testing.T) {
	payload := []byte(`{"type":"history","info":[
		{"id":"a","uid":1,"message":"first","time":"2026-02-09 10:00:00","isRead":true},
		{"id":"b","uid":"2","message":"second","time":"2026-02-09T09:00:00Z"},
		{"id":3,"uid":2,"message":"third","time":1770624000000}
	]}`)

	frame, err := Decode(payload, time.Now())
	require.NoError(t, err)
	require.Equal(t, KindHistory, frame.Kind)
	require.Len(t, frame.History, 3)

	require.Equal(t, "a", frame.History[0].ID)
	require.Equal(t, int64(1), frame.History[0].SenderID)
	require.True(t, frame.History[0].IsRead)
	require.True(t, frame.History[0].Timestamp.Equal(time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)))

	require.Equal(t, int64(2), frame.History[1].SenderID)
	require.False(t, frame.History[1].IsRead)

	require.Equal(t, "3", frame.History[2].ID)
	require.Equal(t, int64(1770624000000), frame.History[2].Timestamp.UnixMilli())
}

func TestDecodeEmptyHistory(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"history","info":[]}`), time.Now())
	require.NoError(t, err)
	require.Empty(t, frame.History)

	frame, err = Decode([]byte(`{"type":"history"}`), time.Now())
	require.NoError(t, err)
	require.NotNil(t, frame.History)
}

func TestDecodeLiveMessage(t *testing.T) {
	received := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

	frame, err := Decode([]byte(`{"type":"message","id":"21x","uid":2,"text":"yo","timestamp":1770638400000}`), received)
	require.NoError(t, err)
	require.Equal(t, KindMessage, frame.Kind)
	require.Equal(t, "yo", frame.Message.Text)
	require.True(t, frame.Message.IsRead)
	require.Equal(t, int64(1770638400000), frame.Message.Timestamp.UnixMilli())

	frame, err = Decode([]byte(`{"type":"message","id":"21y","uid":2,"text":"no ts"}`), received)
	require.NoError(t, err)
	require.True(t, frame.Message.Timestamp.Equal(received))
}

func TestDecodeSuccessAndRead(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"success","id":"READ-2"}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, KindSuccess, frame.Kind)
	require.True(t, frame.IsReadAck())

	frame, err = Decode([]byte(`{"type":"success","id":"121700000000000"}`), time.Now())
	require.NoError(t, err)
	require.False(t, frame.IsReadAck())

	frame, err = Decode([]byte(`{"type":"read","id":"READ-1","uid":2}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, KindRead, frame.Kind)
	require.Equal(t, int64(2), frame.PeerID)
}

func TestDecodeUnknownType(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"typing","uid":2}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, KindUnknown, frame.Kind)
	require.Equal(t, "typing", frame.Type)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"array root":        `[1,2]`,
		"missing type":      `{"id":"x"}`,
		"numeric type":      `{"type":5}`,
		"history not array": `{"type":"history","info":{"id":"a"}}`,
		"history bad item":  `{"type":"history","info":[1]}`,
		"history bad time":  `{"type":"history","info":[{"id":"a","uid":1,"time":"yesterday"}]}`,
		"message no id":     `{"type":"message","uid":2,"text":"x"}`,
		"message bad uid":   `{"type":"message","id":"m","uid":"two","text":"x"}`,
		"success no id":     `{"type":"success"}`,
		"success empty id":  `{"type":"success","id":"  "}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload), time.Now())
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedFrame))
		})
	}
}
