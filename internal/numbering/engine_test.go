package numbering

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	orgs    map[uuid.UUID]Organization
	numbers map[DocumentType][]string
}

func (s *memoryStore) GetOrganization(ctx context.Context, orgID uuid.UUID) (Organization, error) {
	org, ok := s.orgs[orgID]
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	return org, nil
}

func (s *memoryStore) ListNumbers(ctx context.Context, orgID uuid.UUID, docType DocumentType, stem string) ([]string, error) {
	var out []string
	for _, n := range s.numbers[docType] {
		if strings.HasPrefix(n, stem) {
			out = append(out, n)
		}
	}
	return out, nil
}

func newEngine(t *testing.T, org Organization, now time.Time, numbers map[DocumentType][]string) *Engine {
	t.Helper()
	store := &memoryStore{orgs: map[uuid.UUID]Organization{org.ID: org}, numbers: numbers}
	return NewEngine(store, EngineConfig{Clock: func() time.Time { return now }})
}

func TestFiscalYearFor(t *testing.T) {
	cases := []struct {
		start int
		date  time.Time
		want  string
	}{
		{4, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), "24-25"},
		{4, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), "25-26"},
		{4, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "25-26"},
		{1, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "25-26"},
		{12, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), "24-25"},
		{7, time.Date(1999, 8, 1, 0, 0, 0, 0, time.UTC), "99-00"},
	}
	for _, tc := range cases {
		fy, err := FiscalYearFor(tc.start, tc.date)
		require.NoError(t, err)
		require.Equal(t, tc.want, fy.String(), "start=%d date=%s", tc.start, tc.date)
	}

	_, err := FiscalYearFor(0, time.Now())
	require.ErrorIs(t, err, ErrInvalidFiscalYearStart)
	_, err = FiscalYearFor(13, time.Now())
	require.ErrorIs(t, err, ErrInvalidFiscalYearStart)
}

func TestFiscalYearBounds(t *testing.T) {
	fy, err := FiscalYearFor(4, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	start, end := fy.Bounds(nil)
	require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestFirstAvailable(t *testing.T) {
	require.Equal(t, 1, FirstAvailable(nil))
	require.Equal(t, 2, FirstAvailable([]int{1, 3}))
	require.Equal(t, 4, FirstAvailable([]int{3, 1, 2}))
	require.Equal(t, 1, FirstAvailable([]int{2, 3}))
	require.Equal(t, 3, FirstAvailable([]int{1, 1, 2, 2, 7}))
}

func TestInvoiceNumberFillsGaps(t *testing.T) {
	org := Organization{ID: uuid.New(), FiscalYearStart: 4, InvoicePrefix: "INV"}
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	engine := newEngine(t, org, now, map[DocumentType][]string{
		DocumentInvoice: {"INV-24-25-00001", "INV-24-25-00003"},
	})
	n, err := engine.PreviewNextInvoiceNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-24-25-00002", n)

	engine = newEngine(t, org, now, map[DocumentType][]string{
		DocumentInvoice: {"INV-24-25-00001", "INV-24-25-00002", "INV-24-25-00003"},
	})
	n, err = engine.GenerateInvoiceNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-24-25-00004", n)
}

func TestInvoiceNumberRestartsOnFiscalYearRollover(t *testing.T) {
	org := Organization{ID: uuid.New(), FiscalYearStart: 4, InvoicePrefix: "INV"}
	existing := map[DocumentType][]string{
		DocumentInvoice: {"INV-24-25-00001", "INV-24-25-00002"},
	}

	before := newEngine(t, org, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), existing)
	n, err := before.GenerateInvoiceNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-24-25-00003", n)

	after := newEngine(t, org, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), existing)
	n, err = after.GenerateInvoiceNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-25-26-00001", n)
}

func TestFiscalYearUsesConfiguredLocation(t *testing.T) {
	org := Organization{ID: uuid.New(), FiscalYearStart: 4}
	kolkata := time.FixedZone("IST", 5*3600+1800)
	// 31 March 20:00 UTC is already 1 April in India.
	now := time.Date(2025, 3, 31, 20, 0, 0, 0, time.UTC)
	store := &memoryStore{orgs: map[uuid.UUID]Organization{org.ID: org}}
	engine := NewEngine(store, EngineConfig{Location: kolkata, Clock: func() time.Time { return now }})

	n, err := engine.GenerateInvoiceNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-25-26-00001", n)
}

func TestQuotationNumbersUseFixedPrefix(t *testing.T) {
	org := Organization{ID: uuid.New(), FiscalYearStart: 4, InvoicePrefix: "ACME"}
	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	engine := newEngine(t, org, now, map[DocumentType][]string{
		DocumentInvoice:   {"ACME-24-25-00001"},
		DocumentQuotation: {"QT-24-25-00001", "QT-24-25-00002", "QT-24-25-junk"},
	})

	n, err := engine.PreviewNextQuotationNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "QT-24-25-00003", n)

	n, err = engine.GenerateInvoiceNumber(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, "ACME-24-25-00002", n)
}

func TestScopeErrors(t *testing.T) {
	org := Organization{ID: uuid.New(), FiscalYearStart: 0}
	engine := newEngine(t, org, time.Now(), nil)

	_, err := engine.GenerateInvoiceNumber(context.Background(), org.ID)
	require.ErrorIs(t, err, ErrInvalidFiscalYearStart)

	_, err = engine.GenerateInvoiceNumber(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrOrganizationNotFound)

	_, err = engine.Scope(context.Background(), org.ID, DocumentType("receipt"))
	require.ErrorIs(t, err, ErrUnknownDocumentType)
}

func TestFormatPadsSequence(t *testing.T) {
	fy := FiscalYear{StartYear: 2024, StartMonth: time.April}
	require.Equal(t, "INV-24-25-00042", Format("INV", fy, 42))
	require.Equal(t, "INV-24-25-123456", Format("INV", fy, 123456))
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `A\_B\%-24-25-`, escapeLike("A_B%-24-25-"))
}
