package wire

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tOgg1/chatsync/internal/models"
)

// Layouts accepted for textual timestamps. Server times are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// Decode classifies payload. receivedAt stands in for a live message's
// timestamp when the server omits it.
func Decode(payload []byte, receivedAt time.Time) (Inbound, error) {
	if !gjson.ValidBytes(payload) {
		return Inbound{}, malformed("invalid json")
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Inbound{}, malformed("frame is not an object")
	}
	typ := root.Get("type")
	if typ.Type != gjson.String {
		return Inbound{}, malformed("missing type")
	}

	frame := Inbound{Type: typ.String()}
	switch frame.Type {
	case TypeHistory:
		frame.Kind = KindHistory
		history, err := decodeHistory(root.Get("info"))
		if err != nil {
			return Inbound{}, err
		}
		frame.History = history
	case TypeMessage:
		frame.Kind = KindMessage
		msg, err := decodeLive(root, receivedAt)
		if err != nil {
			return Inbound{}, err
		}
		frame.Message = msg
	case TypeSuccess:
		frame.Kind = KindSuccess
		id, err := requireID(root.Get("id"))
		if err != nil {
			return Inbound{}, err
		}
		frame.ID = id
	case TypeRead:
		frame.Kind = KindRead
		frame.ID = root.Get("id").String()
		if uid := root.Get("uid"); uid.Exists() {
			peer, err := parseUID(uid)
			if err != nil {
				return Inbound{}, err
			}
			frame.PeerID = peer
		}
	default:
		frame.Kind = KindUnknown
	}
	return frame, nil
}

func decodeHistory(info gjson.Result) ([]models.Message, error) {
	if !info.Exists() || info.Type == gjson.Null {
		return []models.Message{}, nil
	}
	if !info.IsArray() {
		return nil, malformed("history info is not an array")
	}

	items := info.Array()
	out := make([]models.Message, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, malformed(fmt.Sprintf("history item %d is not an object", i))
		}
		id, err := requireID(item.Get("id"))
		if err != nil {
			return nil, fmt.Errorf("history item %d: %w", i, err)
		}
		uid, err := parseUID(item.Get("uid"))
		if err != nil {
			return nil, fmt.Errorf("history item %d: %w", i, err)
		}
		ts, err := parseTime(item.Get("time"))
		if err != nil {
			return nil, fmt.Errorf("history item %d: %w", i, err)
		}
		out = append(out, models.Message{
			ID:        id,
			SenderID:  uid,
			Text:      item.Get("message").String(),
			Timestamp: ts,
			IsRead:    item.Get("isRead").Bool(),
		})
	}
	return out, nil
}

func decodeLive(root gjson.Result, receivedAt time.Time) (models.Message, error) {
	id, err := requireID(root.Get("id"))
	if err != nil {
		return models.Message{}, err
	}
	uid, err := parseUID(root.Get("uid"))
	if err != nil {
		return models.Message{}, err
	}
	ts := receivedAt
	if raw := root.Get("timestamp"); raw.Exists() && raw.Type != gjson.Null {
		ts, err = parseTime(raw)
		if err != nil {
			return models.Message{}, err
		}
	}
	return models.Message{
		ID:        id,
		SenderID:  uid,
		Text:      root.Get("text").String(),
		Timestamp: ts,
		IsRead:    true,
	}, nil
}

func requireID(r gjson.Result) (string, error) {
	switch r.Type {
	case gjson.String, gjson.Number:
		if id := strings.TrimSpace(r.String()); id != "" {
			return id, nil
		}
	}
	return "", malformed("missing id")
}

func parseUID(r gjson.Result) (int64, error) {
	switch r.Type {
	case gjson.Number:
		return r.Int(), nil
	case gjson.String:
		uid, err := strconv.ParseInt(strings.TrimSpace(r.String()), 10, 64)
		if err == nil {
			return uid, nil
		}
	}
	return 0, malformed("missing or invalid uid")
}

func parseTime(r gjson.Result) (time.Time, error) {
	switch r.Type {
	case gjson.Number:
		return time.UnixMilli(r.Int()), nil
	case gjson.String:
		raw := strings.TrimSpace(r.String())
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		for _, layout := range timeLayouts {
			if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, malformed(fmt.Sprintf("unparseable time %q", raw))
	}
	return time.Time{}, malformed("missing time")
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, reason)
}
