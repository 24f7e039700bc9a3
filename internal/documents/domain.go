package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/numbering"
)

// Document is an issued invoice or quotation.
type Document struct {
	ID           uuid.UUID              `json:"id"`
	OrgID        uuid.UUID              `json:"org_id"`
	Type         numbering.DocumentType `json:"type"`
	Number       string                 `json:"number"`
	CustomerName string                 `json:"customer_name"`
	Total        decimal.Decimal        `json:"total"`
	IssueDate    time.Time              `json:"issue_date"`
	Notes        string                 `json:"notes,omitempty"`
	CreatedBy    uuid.UUID              `json:"created_by"`
	CreatedAt    time.Time              `json:"created_at"`
}

// CreateInput carries the fields of a new document. The number is assigned
// by the service.
type CreateInput struct {
	OrgID        uuid.UUID
	ActorID      uuid.UUID
	CustomerName string
	Total        decimal.Decimal
	IssueDate    time.Time
	Notes        string
}

var (
	// ErrNumberTaken is returned by repositories when the number already
	// exists in the organization.
	ErrNumberTaken = errors.New("documents: number already used")
	// ErrNumberExhausted indicates every retry collided with another writer.
	ErrNumberExhausted = errors.New("documents: failed to generate unique number")
	// ErrNotFound indicates the document does not exist in the organization.
	ErrNotFound = errors.New("documents: not found")
	// ErrInvalidInput rejects incomplete documents.
	ErrInvalidInput = errors.New("documents: customer name and non-negative total required")
	// ErrMissingOrganization rejects calls without a tenant.
	ErrMissingOrganization = errors.New("documents: organization required")
)
