package attendance

import (
	"time"

	"github.com/google/uuid"
)

const (
	CloseSourceManual      = "MANUAL"
	CloseSourceIdleTimeout = "IDLE_TIMEOUT"
	CloseSourceBeacon      = "BEACON"
	CloseSourceSweeper     = "SWEEPER"
)

// openSessionIndex guarantees at most one open session per user at the database level.
const openSessionIndex = "uq_attendance_sessions_open"

type Session struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID    `gorm:"type:uuid;not null;index:idx_attendance_sessions_user_check_in,priority:1;uniqueIndex:uq_attendance_sessions_open,where:check_out IS NULL"`
	CheckIn     time.Time    `gorm:"not null;index:idx_attendance_sessions_user_check_in,priority:2;index:idx_attendance_sessions_check_in"`
	CheckOut    *time.Time   `gorm:"index"`
	CloseSource string       `gorm:"type:varchar(20)"`
	CreatedAt   time.Time    `gorm:"autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime"`
	Employee    *EmployeeRef `gorm:"foreignKey:UserID;references:ID"`
}

func (Session) TableName() string {
	return "attendance_sessions"
}

func (s Session) IsOpen() bool {
	return s.CheckOut == nil
}

// EmployeeRef is the read-only view of the directory row owned by the HR module.
type EmployeeRef struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	FullName string
}

func (EmployeeRef) TableName() string {
	return "employees"
}
