package events

import "time"

const AttendanceSessionTopic = "hr.attendance.session.v1"

const (
	AttendanceSessionOpened = "attendance_session_opened"
	AttendanceSessionClosed = "attendance_session_closed"
)

type AttendanceSessionEvent struct {
	EventType   string     `json:"event_type"`
	RequestID   string     `json:"request_id,omitempty"`
	SessionID   string     `json:"session_id"`
	UserID      string     `json:"user_id"`
	CheckIn     time.Time  `json:"check_in"`
	CheckOut    *time.Time `json:"check_out,omitempty"`
	CloseSource string     `json:"close_source,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}
