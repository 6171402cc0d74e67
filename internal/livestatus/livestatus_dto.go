package livestatus

import "time"

const (
	ModeToday   = "today"
	ModeDate    = "date"
	ModeHistory = "history"
)

// Query selects the feed. Date wins over Today; with neither the feed
// returns the previous seven days.
type Query struct {
	Today bool   `form:"today"`
	Date  string `form:"date"`
}

type LiveEntry struct {
	SessionID    string  `json:"sessionId"`
	EmployeeID   string  `json:"employeeId"`
	EmployeeName string  `json:"employeeName"`
	ClockIn      string  `json:"clockIn"`
	ClockOut     *string `json:"clockOut"`
	Open         bool    `json:"open"`
}

type LiveResponse struct {
	Mode        string      `json:"mode"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Entries     []LiveEntry `json:"entries"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// StreamMessage is one websocket frame of the live stream.
type StreamMessage struct {
	Type string        `json:"type"`
	Data *LiveResponse `json:"data,omitempty"`
}
