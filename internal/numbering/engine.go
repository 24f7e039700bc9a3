// Package numbering derives gap-filling document numbers of the form
// {prefix}-{fiscal year}-{sequence}.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType names a numbered document series.
type DocumentType string

const (
	DocumentInvoice   DocumentType = "invoice"
	DocumentQuotation DocumentType = "quotation"
)

const (
	// DefaultInvoicePrefix applies when the organization has none configured.
	DefaultInvoicePrefix = "INV"
	// QuotationPrefix is fixed for every organization.
	QuotationPrefix = "QT"
)

var (
	// ErrOrganizationNotFound indicates the tenant does not exist.
	ErrOrganizationNotFound = errors.New("numbering: organization not found")
	// ErrUnknownDocumentType rejects series other than invoices and quotations.
	ErrUnknownDocumentType = errors.New("numbering: unknown document type")
)

// Organization carries the settings that shape a number.
type Organization struct {
	ID              uuid.UUID
	FiscalYearStart int
	InvoicePrefix   string
}

// Store reads organizations and the numbers already issued.
type Store interface {
	GetOrganization(ctx context.Context, orgID uuid.UUID) (Organization, error)
	// ListNumbers returns every number of the series starting with stem.
	ListNumbers(ctx context.Context, orgID uuid.UUID, docType DocumentType, stem string) ([]string, error)
}

// Scope identifies one numbering series: an organization, a document type
// and a fiscal year.
type Scope struct {
	OrgID      uuid.UUID
	DocType    DocumentType
	Prefix     string
	FiscalYear FiscalYear
}

// Stem is the common leading part of every number in the scope.
func (s Scope) Stem() string {
	return s.Prefix + "-" + s.FiscalYear.String() + "-"
}

// Engine computes the next free number of a series.
type Engine struct {
	store Store
	loc   *time.Location
	clock func() time.Time
}

// EngineConfig groups optional settings.
type EngineConfig struct {
	// Location decides the calendar day used for fiscal years.
	Location *time.Location
	Clock    func() time.Time
}

// NewEngine constructs Engine.
func NewEngine(store Store, cfg EngineConfig) *Engine {
	e := &Engine{store: store, loc: cfg.Location, clock: cfg.Clock}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// Scope resolves the series that a document created now would belong to.
func (e *Engine) Scope(ctx context.Context, orgID uuid.UUID, docType DocumentType) (Scope, error) {
	var prefix string
	switch docType {
	case DocumentInvoice, DocumentQuotation:
	default:
		return Scope{}, ErrUnknownDocumentType
	}
	org, err := e.store.GetOrganization(ctx, orgID)
	if err != nil {
		return Scope{}, err
	}
	fy, err := FiscalYearFor(org.FiscalYearStart, e.clock().In(e.loc))
	if err != nil {
		return Scope{}, fmt.Errorf("organization %s: %w", orgID, err)
	}
	if docType == DocumentQuotation {
		prefix = QuotationPrefix
	} else {
		prefix = strings.TrimSpace(org.InvoicePrefix)
		if prefix == "" {
			prefix = DefaultInvoicePrefix
		}
	}
	return Scope{OrgID: orgID, DocType: docType, Prefix: prefix, FiscalYear: fy}, nil
}

// Next returns the lowest unused number of the scope. It has no side
// effects; two concurrent callers may receive the same answer.
func (e *Engine) Next(ctx context.Context, scope Scope) (string, error) {
	stem := scope.Stem()
	numbers, err := e.store.ListNumbers(ctx, scope.OrgID, scope.DocType, stem)
	if err != nil {
		return "", err
	}
	return Format(scope.Prefix, scope.FiscalYear, FirstAvailable(parseSequences(stem, numbers))), nil
}

// NextNumber resolves the current scope and its next number.
func (e *Engine) NextNumber(ctx context.Context, orgID uuid.UUID, docType DocumentType) (string, Scope, error) {
	scope, err := e.Scope(ctx, orgID, docType)
	if err != nil {
		return "", Scope{}, err
	}
	number, err := e.Next(ctx, scope)
	if err != nil {
		return "", Scope{}, err
	}
	return number, scope, nil
}

// GenerateInvoiceNumber returns the number to use for the next invoice.
func (e *Engine) GenerateInvoiceNumber(ctx context.Context, orgID uuid.UUID) (string, error) {
	number, _, err := e.NextNumber(ctx, orgID, DocumentInvoice)
	return number, err
}

// PreviewNextInvoiceNumber is GenerateInvoiceNumber for display purposes.
func (e *Engine) PreviewNextInvoiceNumber(ctx context.Context, orgID uuid.UUID) (string, error) {
	return e.GenerateInvoiceNumber(ctx, orgID)
}

// GenerateQuotationNumber returns the number to use for the next quotation.
func (e *Engine) GenerateQuotationNumber(ctx context.Context, orgID uuid.UUID) (string, error) {
	number, _, err := e.NextNumber(ctx, orgID, DocumentQuotation)
	return number, err
}

// PreviewNextQuotationNumber is GenerateQuotationNumber for display purposes.
func (e *Engine) PreviewNextQuotationNumber(ctx context.Context, orgID uuid.UUID) (string, error) {
	return e.GenerateQuotationNumber(ctx, orgID)
}

// Format renders a document number, zero padding the sequence to 5 digits.
func Format(prefix string, fy FiscalYear, seq int) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, fy.String(), seq)
}

// FirstAvailable returns the smallest positive integer missing from seqs.
// Duplicates and non-positive values are ignored.
func FirstAvailable(seqs []int) int {
	sorted := append([]int(nil), seqs...)
	sort.Ints(sorted)
	next := 1
	for _, n := range sorted {
		if n < next {
			continue
		}
		if n > next {
			break
		}
		next++
	}
	return next
}

func parseSequences(stem string, numbers []string) []int {
	seqs := make([]int, 0, len(numbers))
	for _, number := range numbers {
		suffix, ok := strings.CutPrefix(number, stem)
		if !ok || suffix == "" {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n <= 0 {
			continue
		}
		seqs = append(seqs, n)
	}
	return seqs
}
