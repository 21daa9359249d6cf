package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id int64) (*Record, error)
	ListByCamera(ctx context.Context, cameraID string) ([]*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*Record, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	Count(ctx context.Context) (int, error)
	CountByCamera(ctx context.Context, cameraID string) (int, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db querier
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithTx returns a repository view that runs every statement on the
// given transaction. Used by the twin state writer to keep the record
// write and the twin mutation a single logical unit.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

const recordColumns = `id, camera_id, path, lat, lon, captured_at, processed, changed, reason, caption, detections_json, created_at, updated_at`

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO captures (camera_id, path, lat, lon, captured_at, processed, changed, reason, caption, detections_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.CameraID, rec.Path, rec.Lat, rec.Lon, rec.CapturedAt,
		boolToInt(rec.Processed), boolToInt(rec.Changed), rec.Reason, rec.Caption,
		rec.DetectionsJSON, rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, `
		UPDATE captures
		SET camera_id = ?, path = ?, lat = ?, lon = ?, captured_at = ?,
		    processed = ?, changed = ?, reason = ?, caption = ?,
		    detections_json = ?, updated_at = ?
		WHERE id = ?
	`, rec.CameraID, rec.Path, rec.Lat, rec.Lon, rec.CapturedAt,
		boolToInt(rec.Processed), boolToInt(rec.Changed), rec.Reason, rec.Caption,
		rec.DetectionsJSON, rec.UpdatedAt.Format(time.RFC3339), rec.ID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("capture record %d not found", rec.ID)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM captures WHERE id = ?
	`, id)
	return scanRecord(row)
}

func (r *SQLiteRepository) ListByCamera(ctx context.Context, cameraID string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM captures WHERE camera_id = ? ORDER BY id ASC
	`, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM captures ORDER BY id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *SQLiteRepository) ListUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM captures
		WHERE processed = 0 ORDER BY captured_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *SQLiteRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE captures SET processed = 1 WHERE id IN ("+placeholders+")", args...)
	return err
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) CountByCamera(ctx context.Context, cameraID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM captures WHERE camera_id = ?", cameraID).Scan(&count)
	return count, err
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var processed, changed int
	var createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.CameraID, &rec.Path, &rec.Lat, &rec.Lon, &rec.CapturedAt,
		&processed, &changed, &rec.Reason, &rec.Caption, &rec.DetectionsJSON,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Processed = processed == 1
	rec.Changed = changed == 1
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		var rec Record
		var processed, changed int
		var createdAt, updatedAt string

		if err := rows.Scan(&rec.ID, &rec.CameraID, &rec.Path, &rec.Lat, &rec.Lon, &rec.CapturedAt,
			&processed, &changed, &rec.Reason, &rec.Caption, &rec.DetectionsJSON,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.Processed = processed == 1
		rec.Changed = changed == 1
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
