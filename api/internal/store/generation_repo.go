package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:embed schema.sql
var schemaSQL string

// GenerationRecord is one generation attempt of a wizard step.
type GenerationRecord struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Session   string
	Step      int
	Engine    string
	Model     string
	Outcome   string
	Problems  []string
	Raw       string
}

// History reads back the generation log of one session.
type History interface {
	Recent(ctx context.Context, session string, limit int) ([]GenerationRecord, error)
}

type GenerationRepo struct{ DB *sql.DB }

func NewGenerationRepo(db *sql.DB) *GenerationRepo { return &GenerationRepo{DB: db} }

func (r *GenerationRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Insert stores rec, assigning an id when rec.ID is zero.
func (r *GenerationRepo) Insert(ctx context.Context, rec GenerationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	problems, err := encodeProblems(rec.Problems)
	if err != nil {
		return err
	}
	const q = `
insert into generation_log (id, session_ref, step, engine, model, outcome, problems, raw_text)
values ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.DB.ExecContext(ctx, q,
		rec.ID, rec.Session, rec.Step, rec.Engine, rec.Model, rec.Outcome, problems, rec.Raw,
	)
	return err
}

// Recent returns the latest records of a session, newest first.
func (r *GenerationRepo) Recent(ctx context.Context, session string, limit int) ([]GenerationRecord, error) {
	limit = ClampLimit(limit)
	const q = `
select id, created_at, session_ref, step, engine, model, outcome, problems, raw_text
from generation_log
where session_ref = $1
order by created_at desc
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GenerationRecord
	for rows.Next() {
		var (
			rec      GenerationRecord
			problems []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Session, &rec.Step, &rec.Engine,
			&rec.Model, &rec.Outcome, &problems, &rec.Raw); err != nil {
			return nil, err
		}
		if len(problems) > 0 {
			_ = json.Unmarshal(problems, &rec.Problems)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes old log rows so the table does not grow unbounded.
func (r *GenerationRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from generation_log where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

// ClampLimit bounds a requested page size to 1..100, defaulting to 20.
func ClampLimit(n int) int {
	if n <= 0 || n > 100 {
		return 20
	}
	return n
}

func encodeProblems(p []string) ([]byte, error) {
	if p == nil {
		p = []string{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("store: encode problems: %w", err)
	}
	return b, nil
}
