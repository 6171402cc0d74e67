package attendance

type ClockOutRequest struct {
	Source string `json:"source" binding:"omitempty,oneof=MANUAL IDLE_TIMEOUT BEACON"`
}

// ClockRequest is the combined endpoint body. Anything other than a
// check-in type is treated as a check-out.
type ClockRequest struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

type RangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

type SessionResponse struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	EmployeeName  string  `json:"employee_name,omitempty"`
	CheckIn       string  `json:"check_in"`
	CheckOut      *string `json:"check_out,omitempty"`
	CloseSource   string  `json:"close_source,omitempty"`
	Open          bool    `json:"open"`
	DurationHours float64 `json:"duration_hours"`
}

type ClockOutResponse struct {
	AlreadyOut bool             `json:"already_out"`
	Session    *SessionResponse `json:"session,omitempty"`
}

type ClockResponse struct {
	Action     string           `json:"action"`
	AlreadyOut bool             `json:"already_out,omitempty"`
	Session    *SessionResponse `json:"session,omitempty"`
}

type StatusResponse struct {
	UserID  string           `json:"user_id"`
	Role    string           `json:"role,omitempty"`
	Status  string           `json:"status"`
	Session *SessionResponse `json:"session,omitempty"`
}

type HoursResponse struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

type BucketResponse struct {
	Label string  `json:"label"`
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

type ReportResponse struct {
	Period     string           `json:"period"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	TotalHours float64          `json:"total_hours"`
	Buckets    []BucketResponse `json:"buckets"`
}
