package models

import "time"

// Section groups the messages of one local calendar day, newest first.
type Section struct {
	DateKey  time.Time
	Messages []Message
}

// DayKey returns the start of ts's calendar day in loc.
func DayKey(ts time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := ts.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Len returns the number of messages in the section.
func (s Section) Len() int {
	return len(s.Messages)
}

// Clone returns a deep copy of the section.
func (s Section) Clone() Section {
	out := Section{DateKey: s.DateKey}
	if len(s.Messages) > 0 {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}
