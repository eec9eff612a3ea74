package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/jmoiron/sqlx"
)

// AuditRepository is an append-only store over the audit_entries table.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type auditRow struct {
	ID           string         `db:"id"`
	ActorID      sql.NullInt64  `db:"actor_id"`
	SubjectTable string         `db:"subject_table"`
	SubjectID    string         `db:"subject_id"`
	Action       string         `db:"action"`
	Before       sql.NullString `db:"before_data"`
	After        sql.NullString `db:"after_data"`
	IPAddress    string         `db:"ip_address"`
	UserAgent    string         `db:"user_agent"`
	RequestID    string         `db:"request_id"`
	CreatedAt    time.Time      `db:"created_at"`
}

const insertAudit = `INSERT INTO audit_entries
	(id, actor_id, subject_table, subject_id, action, before_data, after_data, ip_address, user_agent, request_id, created_at)
	VALUES (:id, :actor_id, :subject_table, :subject_id, :action, :before_data, :after_data, :ip_address, :user_agent, :request_id, :created_at)`

func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	row, err := toRow(e)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, insertAudit, row); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.SubjectTable != "" {
		where = append(where, "subject_table = ?")
		args = append(args, f.SubjectTable)
	}
	if f.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, f.SubjectID)
	}
	if f.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}

	query := `SELECT id, actor_id, subject_table, subject_id, action, before_data, after_data,
		ip_address, user_agent, request_id, created_at FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for i := range rows {
		e, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toRow(e *audit.Entry) (*auditRow, error) {
	before, err := encodeSnapshot(e.Before)
	if err != nil {
		return nil, err
	}
	after, err := encodeSnapshot(e.After)
	if err != nil {
		return nil, err
	}

	row := &auditRow{
		ID:           e.ID,
		SubjectTable: e.SubjectTable,
		SubjectID:    e.SubjectID,
		Action:       string(e.Action),
		Before:       before,
		After:        after,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		RequestID:    e.RequestID,
		CreatedAt:    e.CreatedAt,
	}
	if e.ActorID != nil {
		row.ActorID = sql.NullInt64{Int64: *e.ActorID, Valid: true}
	}
	return row, nil
}

func fromRow(row *auditRow) (*audit.Entry, error) {
	e := &audit.Entry{
		ID:           row.ID,
		SubjectTable: row.SubjectTable,
		SubjectID:    row.SubjectID,
		Action:       audit.Action(row.Action),
		IPAddress:    row.IPAddress,
		UserAgent:    row.UserAgent,
		RequestID:    row.RequestID,
		CreatedAt:    row.CreatedAt,
	}
	if row.ActorID.Valid {
		id := row.ActorID.Int64
		e.ActorID = &id
	}
	if row.Before.Valid {
		if err := json.Unmarshal([]byte(row.Before.String), &e.Before); err != nil {
			return nil, fmt.Errorf("decode before snapshot of %s: %w", row.ID, err)
		}
	}
	if row.After.Valid {
		if err := json.Unmarshal([]byte(row.After.String), &e.After); err != nil {
			return nil, fmt.Errorf("decode after snapshot of %s: %w", row.ID, err)
		}
	}
	return e, nil
}

// encodeSnapshot relies on encoding/json sorting map keys, so equal
// snapshots always serialise identically.
func encodeSnapshot(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
