package attendance

import (
	"context"
	"database/sql"
	"time"

	"tn-work/internal/shared/clock"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the session store. Find methods return (nil, nil) when no
// session matches. Close only succeeds on a session that is still open and
// reports whether this call was the one that closed it.
//
//go:generate mockgen -source=attendance_repo.go -destination=mock/attendance_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, s *Session) error
	FindOpen(ctx context.Context, userID string) (*Session, error)
	FindOpenLatest(ctx context.Context, userID string) (*Session, error)
	Close(ctx context.Context, id uuid.UUID, checkOut time.Time, source string) (bool, error)
	// ListIntersecting returns sessions whose check-in falls inside w, newest
	// first. An empty userID lists every user.
	ListIntersecting(ctx context.Context, userID string, w clock.Window) ([]Session, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	ListOpenBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
}

type repository struct {
	db *gorm.DB
	tx *sql.Tx
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{db: r.db, tx: tx}
}

// conn binds the query to the service transaction when one is attached.
func (r *repository) conn(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx)
	if r.tx != nil {
		db.Statement.ConnPool = r.tx
	}
	return db
}

func (r *repository) Create(ctx context.Context, s *Session) error {
	return r.conn(ctx).Omit("Employee").Create(s).Error
}

func (r *repository) FindOpen(ctx context.Context, userID string) (*Session, error) {
	return r.findOpen(ctx, userID, "check_in ASC")
}

func (r *repository) FindOpenLatest(ctx context.Context, userID string) (*Session, error) {
	return r.findOpen(ctx, userID, "check_in DESC")
}

func (r *repository) findOpen(ctx context.Context, userID, order string) (*Session, error) {
	// Find instead of Take: being out is the common case, not a lookup failure
	var rows []Session
	err := r.conn(ctx).
		Where("user_id = ? AND check_out IS NULL", userID).
		Order(order).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) Close(ctx context.Context, id uuid.UUID, checkOut time.Time, source string) (bool, error) {
	res := r.conn(ctx).
		Model(&Session{}).
		Where("id = ? AND check_out IS NULL", id).
		Updates(map[string]any{
			"check_out":    checkOut,
			"close_source": source,
			"updated_at":   checkOut,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListIntersecting(ctx context.Context, userID string, w clock.Window) ([]Session, error) {
	var rows []Session
	q := r.conn(ctx).
		Preload("Employee").
		Where("check_in >= ? AND check_in < ?", w.Start, w.End)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Order("check_in DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	var rows []Session
	err := r.conn(ctx).
		Where("user_id = ?", userID).
		Order("check_in DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	var rows []Session
	err := r.conn(ctx).
		Where("check_out IS NULL AND check_in < ?", cutoff).
		Order("check_in ASC").
		Find(&rows).Error
	return rows, err
}

// AutoMigrate creates the session table and its partial unique index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EmployeeRef{}, &Session{})
}
