package numbering

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads numbering inputs from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrganization loads the fiscal settings of an organization.
func (r *Repository) GetOrganization(ctx context.Context, orgID uuid.UUID) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx, `SELECT id, fiscal_year_start, COALESCE(invoice_prefix, '')
FROM organizations WHERE id=$1`, orgID).Scan(&org.ID, &org.FiscalYearStart, &org.InvoicePrefix)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrOrganizationNotFound
	}
	return org, err
}

// ListNumbers scans issued numbers of a series. Both document tables keep
// the number in a column named number.
func (r *Repository) ListNumbers(ctx context.Context, orgID uuid.UUID, docType DocumentType, stem string) ([]string, error) {
	var table string
	switch docType {
	case DocumentInvoice:
		table = "invoices"
	case DocumentQuotation:
		table = "quotations"
	default:
		return nil, ErrUnknownDocumentType
	}
	rows, err := r.pool.Query(ctx, `SELECT number FROM `+table+`
WHERE org_id=$1 AND number LIKE $2 ESCAPE '\'`, orgID, escapeLike(stem)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
