package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/numbering"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
)

// Repository persists invoices and quotations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type tableInfo struct {
	name       string
	constraint string
}

func tableFor(docType numbering.DocumentType) (tableInfo, error) {
	switch docType {
	case numbering.DocumentInvoice:
		return tableInfo{name: "invoices", constraint: "invoices_org_number_key"}, nil
	case numbering.DocumentQuotation:
		return tableInfo{name: "quotations", constraint: "quotations_org_number_key"}, nil
	}
	return tableInfo{}, numbering.ErrUnknownDocumentType
}

// Insert stores doc, translating the per-organization number constraint into
// ErrNumberTaken.
func (r *Repository) Insert(ctx context.Context, doc Document) error {
	t, err := tableFor(doc.Type)
	if err != nil {
		return err
	}
	var createdBy any
	if doc.CreatedBy != uuid.Nil {
		createdBy = doc.CreatedBy
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO `+t.name+`
(id, org_id, number, customer_name, total, issue_date, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)`,
		doc.ID, doc.OrgID, doc.Number, doc.CustomerName, doc.Total, doc.IssueDate, doc.Notes, createdBy, doc.CreatedAt)
	if db.IsUniqueViolation(err, t.constraint) {
		return ErrNumberTaken
	}
	return err
}

// Get loads a document scoped to its organization.
func (r *Repository) Get(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType, id uuid.UUID) (Document, error) {
	t, err := tableFor(docType)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Type: docType}
	var createdBy pgtype.UUID
	err = r.pool.QueryRow(ctx, `SELECT id, org_id, number, customer_name, total, issue_date, COALESCE(notes, ''), created_by, created_at
FROM `+t.name+` WHERE org_id=$1 AND id=$2`, orgID, id).Scan(
		&doc.ID, &doc.OrgID, &doc.Number, &doc.CustomerName, &doc.Total, &doc.IssueDate, &doc.Notes, &createdBy, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if createdBy.Valid {
		doc.CreatedBy = uuid.UUID(createdBy.Bytes)
	}
	return doc, nil
}

// Delete removes a document scoped to its organization.
func (r *Repository) Delete(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType, id uuid.UUID) error {
	t, err := tableFor(docType)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+t.name+` WHERE org_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
