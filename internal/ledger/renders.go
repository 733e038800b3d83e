package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Render states. Submitted and Processing are in flight.
const (
	StatusSubmitted  = "submitted"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusDownloaded = "downloaded"
)

// Render is one avatar video request for one audio part.
type Render struct {
	ID         int64
	RunID      string
	Part       int
	AudioURL   string
	VideoID    string
	Status     string
	VideoURL   string
	OutputPath string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InFlight reports whether the render still needs polling.
func (r Render) InFlight() bool {
	return r.Status == StatusSubmitted || r.Status == StatusProcessing
}

// Reusable reports whether a resumed run can keep this render's video id.
func (r Render) Reusable() bool {
	return r.VideoID != "" && r.Status != StatusFailed
}

const renderColumns = `id, run_id, part, audio_url, video_id, status, video_url, output_path, error, created_at, updated_at`

// Record inserts the render, or replaces the submission of an existing
// (run, part) pair. The stored row is returned.
func (l *Ledger) Record(ctx context.Context, r Render) (*Render, error) {
	if strings.TrimSpace(r.RunID) == "" {
		return nil, errors.New("ledger: run id required")
	}
	if r.Part <= 0 {
		return nil, errors.Errorf("ledger: part must be positive, got %d", r.Part)
	}
	if r.Status == "" {
		r.Status = StatusSubmitted
	}
	now := formatTime(l.now())
	_, err := l.exec(ctx, `
INSERT INTO renders (run_id, part, audio_url, video_id, status, video_url, output_path, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, part) DO UPDATE SET
    audio_url = excluded.audio_url,
    video_id = excluded.video_id,
    status = excluded.status,
    video_url = excluded.video_url,
    output_path = excluded.output_path,
    error = excluded.error,
    updated_at = excluded.updated_at`,
		r.RunID, r.Part, r.AudioURL, r.VideoID, r.Status, r.VideoURL, r.OutputPath, r.Error, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "record render")
	}
	return l.Get(ctx, r.RunID, r.Part)
}

// Update holds the fields UpdateStatus may change. Empty strings keep the
// stored value, except Error which is always written.
type Update struct {
	Status     string
	VideoURL   string
	OutputPath string
	Error      string
}

// UpdateStatus changes the state of render id.
func (l *Ledger) UpdateStatus(ctx context.Context, id int64, u Update) error {
	if u.Status == "" {
		return errors.New("ledger: status required")
	}
	res, err := l.exec(ctx, `
UPDATE renders SET
    status = ?,
    video_url = CASE WHEN ? = '' THEN video_url ELSE ? END,
    output_path = CASE WHEN ? = '' THEN output_path ELSE ? END,
    error = ?,
    updated_at = ?
WHERE id = ?`,
		u.Status, u.VideoURL, u.VideoURL, u.OutputPath, u.OutputPath, u.Error, formatTime(l.now()), id)
	if err != nil {
		return errors.Wrap(err, "update render")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}
	return nil
}

// Get returns the render for (runID, part).
func (l *Ledger) Get(ctx context.Context, runID string, part int) (*Render, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE run_id = ? AND part = ?`, runID, part)
	r, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "run %s part %d", runID, part)
	}
	return r, err
}

// Pending lists the renders of runID still in flight, in part order.
func (l *Ledger) Pending(ctx context.Context, runID string) ([]Render, error) {
	return l.query(ctx, `SELECT `+renderColumns+` FROM renders
WHERE run_id = ? AND status IN (?, ?) ORDER BY part`, runID, StatusSubmitted, StatusProcessing)
}

// ForRun lists every render of runID in part order.
func (l *Ledger) ForRun(ctx context.Context, runID string) ([]Render, error) {
	return l.query(ctx, `SELECT `+renderColumns+` FROM renders WHERE run_id = ? ORDER BY part`, runID)
}

// List returns the most recently updated renders, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Render, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.query(ctx, `SELECT `+renderColumns+` FROM renders ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
}

// LatestRun returns the run id of the newest render.
func (l *Ledger) LatestRun(ctx context.Context) (string, error) {
	var runID string
	err := l.db.QueryRowContext(ctx, `SELECT run_id FROM renders ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return runID, errors.WithStack(err)
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Render, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query renders")
	}
	defer rows.Close()

	var out []Render
	for rows.Next() {
		r, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, errors.WithStack(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRender(s scanner) (*Render, error) {
	var (
		r                  Render
		created, updated string
	)
	err := s.Scan(&r.ID, &r.RunID, &r.Part, &r.AudioURL, &r.VideoID, &r.Status,
		&r.VideoURL, &r.OutputPath, &r.Error, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan render")
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

// Fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
