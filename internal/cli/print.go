package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tOgg1/chatsync/internal/models"
)

const timestampLayout = "2006-01-02 15:04"

// formatMessage renders one message as a single line.
func formatMessage(msg models.Message, userID int64, loc *time.Location) string {
	author := strconv.FormatInt(msg.SenderID, 10)
	if msg.IsOwn(userID) {
		author = "me"
	}
	line := fmt.Sprintf("%s  %-6s %s", msg.Timestamp.In(loc).Format(timestampLayout), author, strings.ReplaceAll(msg.Text, "\n", " "))
	if msg.IsOwn(userID) && msg.IsRead {
		line += "  (read)"
	}
	return line
}

// writeSections prints sections oldest message first.
func writeSections(w io.Writer, sections []models.Section, userID int64, loc *time.Location) error {
	for i := len(sections) - 1; i >= 0; i-- {
		msgs := sections[i].Messages
		for j := len(msgs) - 1; j >= 0; j-- {
			if _, err := fmt.Fprintln(w, formatMessage(msgs[j], userID, loc)); err != nil {
				return err
			}
		}
	}
	return nil
}
