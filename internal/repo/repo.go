package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"asbuilt/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const runColumns = `id,COALESCE(well_id,'') AS well_id,COALESCE(document_ref,'') AS document_ref,failed,plug_count,warning_count,input_json,result_json,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var r domain.Run
	var failed int
	err := row.Scan(&r.ID, &r.WellID, &r.DocumentRef, &failed, &r.PlugCount, &r.WarningCount, &r.InputJSON, &r.ResultJSON, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	r.Failed = failed != 0
	return r, err
}

// InsertRun archives a run. It reports false when a run with the same id already exists;
// identical inputs share an id, so the archive keeps the first copy.
func (r Repo) InsertRun(ctx context.Context, tx *sql.Tx, run domain.Run) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO runs(id,well_id,document_ref,failed,plug_count,warning_count,input_json,result_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		run.ID, nullable(run.WellID), nullable(run.DocumentRef), boolInt(run.Failed), run.PlugCount, run.WarningCount, run.InputJSON, run.ResultJSON, run.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

type RunFilters struct {
	WellID          string
	Failed          *bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListRuns returns runs newest first. Result and input documents are omitted.
func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.WellID != "" {
		clauses = append(clauses, "well_id=?")
		args = append(args, f.WellID)
	}
	if f.Failed != nil {
		clauses = append(clauses, "failed=?")
		args = append(args, boolInt(*f.Failed))
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,COALESCE(well_id,''),COALESCE(document_ref,''),failed,plug_count,warning_count,'','',created_at FROM runs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

func (r Repo) DeleteRun(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM runs WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// EventsForRun returns a run's events in ascending order, starting after cursor.
func (r Repo) EventsForRun(ctx context.Context, runID string, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"run_id=?"}
	args := []any{runID}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(run_id,''),payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RunID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
