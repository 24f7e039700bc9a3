package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-books/internal/numbering"
	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// RepositoryPort persists documents.
type RepositoryPort interface {
	Insert(ctx context.Context, doc Document) error
	Get(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType, id uuid.UUID) (Document, error)
	Delete(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType, id uuid.UUID) error
}

// NumberSource hands out candidate numbers.
type NumberSource interface {
	Scope(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType) (numbering.Scope, error)
	Next(ctx context.Context, scope numbering.Scope) (string, error)
}

// Locker serializes number assignment across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MetricsRecorder counts numbering contention.
type MetricsRecorder interface {
	NumberingRetry(docType string)
	NumberingExhausted(docType string)
}

// Config groups optional settings.
type Config struct {
	MaxAttempts int
	LockTTL     time.Duration
	Logger      *slog.Logger
	Metrics     MetricsRecorder
	Clock       func() time.Time
}

// Service creates and deletes numbered documents.
type Service struct {
	repo        RepositoryPort
	numbers     NumberSource
	locker      Locker
	maxAttempts int
	lockTTL     time.Duration
	logger      *slog.Logger
	metrics     MetricsRecorder
	clock       func() time.Time
}

// NewService builds Service. locker may be nil, in which case only the
// unique constraint and the retry loop guard against duplicates.
func NewService(repo RepositoryPort, numbers NumberSource, locker Locker, cfg Config) *Service {
	s := &Service{
		repo:        repo,
		numbers:     numbers,
		locker:      locker,
		maxAttempts: cfg.MaxAttempts,
		lockTTL:     cfg.LockTTL,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 5 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// CreateInvoice stores an invoice under the next free invoice number.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInput) (Document, error) {
	return s.create(ctx, numbering.DocumentInvoice, input)
}

// CreateQuotation stores a quotation under the next free QT number.
func (s *Service) CreateQuotation(ctx context.Context, input CreateInput) (Document, error) {
	return s.create(ctx, numbering.DocumentQuotation, input)
}

// DeleteInvoice removes an invoice, freeing its number for reuse.
func (s *Service) DeleteInvoice(ctx context.Context, orgID, id uuid.UUID) error {
	return s.Delete(ctx, orgID, numbering.DocumentInvoice, id)
}

// DeleteQuotation removes a quotation, freeing its number for reuse.
func (s *Service) DeleteQuotation(ctx context.Context, orgID, id uuid.UUID) error {
	return s.Delete(ctx, orgID, numbering.DocumentQuotation, id)
}

// Delete removes a document of the given type.
func (s *Service) Delete(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType, id uuid.UUID) error {
	if orgID == uuid.Nil {
		return ErrMissingOrganization
	}
	return s.repo.Delete(ctx, orgID, docType, id)
}

// Get loads a document of the given type.
func (s *Service) Get(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType, id uuid.UUID) (Document, error) {
	if orgID == uuid.Nil {
		return Document{}, ErrMissingOrganization
	}
	return s.repo.Get(ctx, orgID, docType, id)
}

// PreviewNextNumber shows the number the next document would most likely
// receive. It reserves nothing.
func (s *Service) PreviewNextNumber(ctx context.Context, orgID uuid.UUID, docType numbering.DocumentType) (string, error) {
	if orgID == uuid.Nil {
		return "", ErrMissingOrganization
	}
	scope, err := s.numbers.Scope(ctx, orgID, docType)
	if err != nil {
		return "", err
	}
	return s.numbers.Next(ctx, scope)
}

func (s *Service) create(ctx context.Context, docType numbering.DocumentType, input CreateInput) (Document, error) {
	if input.OrgID == uuid.Nil {
		return Document{}, ErrMissingOrganization
	}
	customer := strings.TrimSpace(input.CustomerName)
	if customer == "" || input.Total.IsNegative() {
		return Document{}, ErrInvalidInput
	}
	scope, err := s.numbers.Scope(ctx, input.OrgID, docType)
	if err != nil {
		return Document{}, err
	}
	release := s.lock(ctx, scope)
	defer release()

	now := s.clock()
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = now
	}
	doc := Document{
		OrgID:        input.OrgID,
		Type:         docType,
		CustomerName: customer,
		Total:        input.Total,
		IssueDate:    issueDate,
		Notes:        input.Notes,
		CreatedBy:    input.ActorID,
		CreatedAt:    now,
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.numbers.Next(ctx, scope)
		if err != nil {
			return Document{}, err
		}
		doc.ID = uuid.New()
		doc.Number = number
		err = s.repo.Insert(ctx, doc)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return Document{}, err
		}
		s.metrics.NumberingRetry(string(docType))
		s.logger.Warn("document number taken, retrying",
			slog.String("org_id", input.OrgID.String()),
			slog.String("number", number),
			slog.Int("attempt", attempt))
	}
	s.metrics.NumberingExhausted(string(docType))
	return Document{}, fmt.Errorf("%w after %d attempts", ErrNumberExhausted, s.maxAttempts)
}

// lock takes the best-effort series lock. Failing to obtain it is not fatal
// because the unique constraint still rejects duplicates.
func (s *Service) lock(ctx context.Context, scope numbering.Scope) func() {
	noop := func() {}
	if s.locker == nil {
		return noop
	}
	key := shared.NumberingLockKey(scope.OrgID.String(), string(scope.DocType), scope.FiscalYear.String())
	release, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, cache.ErrLockNotObtained) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "numbering lock unavailable, proceeding", slog.String("key", key), slog.Any("error", err))
		return noop
	}
	return release
}

type noopMetrics struct{}

func (noopMetrics) NumberingRetry(string)     {}
func (noopMetrics) NumberingExhausted(string) {}
