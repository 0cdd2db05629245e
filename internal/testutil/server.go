package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/tOgg1/chatsync/internal/models"
)

// ChatServer is an in-process chat server speaking the JSON frame protocol.
// It serves history pages from a fixed list, acknowledges message and read
// frames, and records everything clients send.
type ChatServer struct {
	t        testing.TB
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	history  []models.Message
	conns    []*serverConn
	autoAck  bool
	received chan string
	accepted chan struct{}
}

type serverConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *serverConn) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type historyItem struct {
	ID      string `json:"id"`
	UID     int64  `json:"uid"`
	Message string `json:"message"`
	Time    string `json:"time"`
	IsRead  bool   `json:"isRead"`
}

// NewChatServer starts a server that is shut down when the test ends.
func NewChatServer(t testing.TB) *ChatServer {
	t.Helper()
	SkipIfNoNetwork(t)

	s := &ChatServer{
		t:        t,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		autoAck:  true,
		received: make(chan string, 256),
		accepted: make(chan struct{}, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// address of the server.
func (s *ChatServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// SetHistory replaces the stored conversation, newest message first.
func (s *ChatServer) SetHistory(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]models.Message(nil), msgs...)
}

// SetAutoAck controls whether message frames are acknowledged.
func (s *ChatServer) SetAutoAck(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoAck = on
}

// Broadcast writes payload to every connected client.
func (s *ChatServer) Broadcast(payload string) {
	s.mu.Lock()
	conns := append([]*serverConn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.write([]byte(payload))
	}
}

// DropConnections closes every client connection with a normal close frame.
func (s *ChatServer) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

// WaitConnected waits for the next accepted connection.
func (s *ChatServer) WaitConnected(timeout time.Duration) {
	s.t.Helper()
	select {
	case <-s.accepted:
	case <-time.After(timeout):
		s.t.Fatalf("no client connected within %s", timeout)
	}
}

// Expect waits for the next frame a client sent.
func (s *ChatServer) Expect(timeout time.Duration) string {
	s.t.Helper()
	select {
	case frame := <-s.received:
		return frame
	case <-time.After(timeout):
		s.t.Fatalf("no frame received within %s", timeout)
		return ""
	}
}

// ExpectType waits for the next frame of the given type, skipping others.
func (s *ChatServer) ExpectType(frameType string, timeout time.Duration) string {
	s.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case frame := <-s.received:
			if gjson.Get(frame, "type").String() == frameType {
				return frame
			}
		case <-deadline:
			s.t.Fatalf("no %s frame received within %s", frameType, timeout)
			return ""
		}
	}
}

// Close shuts the server down.
func (s *ChatServer) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *ChatServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sc := &serverConn{conn: conn}
	s.mu.Lock()
	s.conns = append(s.conns, sc)
	s.mu.Unlock()
	s.accepted <- struct{}{}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)
		select {
		case s.received <- frame:
		default:
		}
		if reply := s.reply(frame); reply != nil {
			if err := sc.write(reply); err != nil {
				return
			}
		}
	}
}

func (s *ChatServer) reply(frame string) []byte {
	parsed := gjson.Parse(frame)
	switch parsed.Get("type").String() {
	case "history":
		return s.historyPage(int(parsed.Get("offset").Int()), int(parsed.Get("limit").Int()))
	case "message":
		s.mu.Lock()
		ack := s.autoAck
		s.mu.Unlock()
		if !ack {
			return nil
		}
		return mustJSON(map[string]string{"type": "success", "id": parsed.Get("id").String()})
	case "read":
		return mustJSON(map[string]string{"type": "success", "id": parsed.Get("id").String()})
	default:
		return nil
	}
}

func (s *ChatServer) historyPage(offset, limit int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]historyItem, 0, limit)
	for i := offset; i < len(s.history) && len(items) < limit; i++ {
		msg := s.history[i]
		items = append(items, historyItem{
			ID:      msg.ID,
			UID:     msg.SenderID,
			Message: msg.Text,
			Time:    msg.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			IsRead:  msg.IsRead,
		})
	}
	return mustJSON(map[string]any{"type": "history", "info": items})
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
