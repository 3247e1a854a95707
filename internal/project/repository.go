package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cmbworks/cmbworks/internal/platform/db"
)

// Repository persists project documents.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Document, error)
	List(ctx context.Context) ([]Summary, error)
	Save(ctx context.Context, id uuid.UUID, doc Document) (time.Time, error)
	RecordExport(ctx context.Context, rec ExportRecord) error
}

// ExportRecord notes a rendered bill file.
type ExportRecord struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	BillIndex int
	Format    string
	Path      string
}

// PgRepository stores documents as JSONB rows.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Get loads one document.
func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT document, updated_at FROM projects WHERE id = $1::uuid`, id.String()).
		Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("project: decode %s: %w", id, err)
	}
	doc.ID = id.String()
	doc.UpdatedAt = updatedAt
	return doc, nil
}

// List returns every project ordered by name.
func (r *PgRepository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name,
		       CASE WHEN jsonb_typeof(document->'bills') = 'array'
		            THEN jsonb_array_length(document->'bills') ELSE 0 END,
		       updated_at
		FROM projects
		ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			s  Summary
			id string
		)
		if err := rows.Scan(&id, &s.Name, &s.Bills, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save upserts the document and returns the stored timestamp.
func (r *PgRepository) Save(ctx context.Context, id uuid.UUID, doc Document) (time.Time, error) {
	doc.ID = id.String()
	raw, err := json.Marshal(doc)
	if err != nil {
		return time.Time{}, fmt.Errorf("project: encode %s: %w", id, err)
	}
	var updatedAt time.Time
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO projects (id, name, document, updated_at)
			VALUES ($1::uuid, $2, $3::jsonb, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, document = EXCLUDED.document, updated_at = NOW()
			RETURNING updated_at`, id.String(), doc.Name, string(raw)).Scan(&updatedAt)
	})
	return updatedAt, err
}

// RecordExport stores the location of a rendered bill.
func (r *PgRepository) RecordExport(ctx context.Context, rec ExportRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bill_exports (id, project_id, bill_index, format, path)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5)`,
		rec.ID.String(), rec.ProjectID.String(), rec.BillIndex, rec.Format, rec.Path)
	return err
}
