package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrShareNotFound is returned when no share has the requested hash
var ErrShareNotFound = errors.New("share not found")

type (
	// Share is the record of one stored merged recording
	Share struct {
		ID         int64               `json:"id"`
		Hash       string              `json:"hash"`
		CourseID   string              `json:"course_id"`
		LessonID   string              `json:"lesson_id"`
		UserName   string              `json:"user_name"`
		Path       string              `json:"path"`
		DurationMs int64               `json:"duration_ms"`
		SampleRate int                 `json:"sample_rate"`
		Score      decimal.NullDecimal `json:"score"`
		CreatedAt  time.Time           `json:"created_at"`
	}

	SQLiteRepo struct {
		db *sql.DB
	}
)

const shareColumns = "id, hash, course_id, lesson_id, user_name, path, duration_ms, sample_rate, score, created_at"

func NewSQLiteRepo(db *sql.DB) SQLiteRepo {
	return SQLiteRepo{db}
}

// CreateShare inserts s unless a share with the same hash exists. It returns
// the stored record and whether it was newly created.
func (r SQLiteRepo) CreateShare(ctx context.Context, s Share) (Share, bool, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	err := r.db.
		QueryRowContext(
			ctx,
			`insert into shares (hash, course_id, lesson_id, user_name, path, duration_ms, sample_rate, score, created_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?)
			on conflict (hash) do nothing
			returning id`,
			s.Hash,
			s.CourseID,
			s.LessonID,
			s.UserName,
			s.Path,
			s.DurationMs,
			s.SampleRate,
			s.Score,
			s.CreatedAt.UnixMilli(),
		).
		Scan(&s.ID)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := r.GetShareByHash(ctx, s.Hash)
		return existing, false, err
	}
	if err != nil {
		return s, false, fmt.Errorf("persisting share into sqlite: %w", err)
	}

	s.CreatedAt = time.UnixMilli(s.CreatedAt.UnixMilli())
	return s, true, nil
}

func (r SQLiteRepo) GetShareByHash(ctx context.Context, hash string) (Share, error) {
	row := r.db.QueryRowContext(ctx, "select "+shareColumns+" from shares where hash = ?", hash)

	res, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return res, fmt.Errorf("get share by hash %s: %w", hash, ErrShareNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("get share by hash: %w", err)
	}

	return res, nil
}

// ListShares returns the shares of a lesson, newest first
func (r SQLiteRepo) ListShares(ctx context.Context, lessonID string) ([]Share, error) {
	rows, err := r.db.QueryContext(
		ctx,
		"select "+shareColumns+" from shares where lesson_id = ? order by created_at desc, id desc",
		lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	var res []Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("listing shares: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}

	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShare(row scanner) (Share, error) {
	var (
		s         Share
		createdAt int64
	)

	err := row.Scan(
		&s.ID,
		&s.Hash,
		&s.CourseID,
		&s.LessonID,
		&s.UserName,
		&s.Path,
		&s.DurationMs,
		&s.SampleRate,
		&s.Score,
		&createdAt,
	)
	if err != nil {
		return s, err
	}

	s.CreatedAt = time.UnixMilli(createdAt)
	return s, nil
}
