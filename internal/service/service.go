package service

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"storekeep/backend/internal/cache"
	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/ledger"
	"storekeep/backend/internal/logger"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

const (
	reportKeyPrefix = "report:"
	maxAuditPayload = 4096
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok
}

type Options struct {
	Reports              cache.ReportCache
	ReportTTL            time.Duration
	CriticalStockDefault int
	Logger               *logger.Logger
}

type Service struct {
	repo          store.Repository
	ledger        *ledger.Ledger
	reports       cache.ReportCache
	reportTTL     time.Duration
	criticalStock int
	log           *logger.Logger
	now           func() time.Time
	saleLocks     keyedLocks
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Reports == nil {
		opts.Reports = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = time.Minute
	}
	if opts.CriticalStockDefault < 0 {
		opts.CriticalStockDefault = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Service{
		repo:          repo,
		ledger:        ledger.New(repo),
		reports:       opts.Reports,
		reportTTL:     opts.ReportTTL,
		criticalStock: opts.CriticalStockDefault,
		log:           opts.Logger.Named("service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// atomically runs fn inside a database transaction when the repository
// supports one, and directly against the repository otherwise.
func (s *Service) atomically(ctx context.Context, fn func(repo store.Repository) error) error {
	if tx, ok := s.repo.(store.Transactor); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(s.repo)
}

// withStockJournal runs a multi-step stock operation. Without a database
// transaction every applied movement is reverted when fn fails.
func (s *Service) withStockJournal(ctx context.Context, fn func(repo store.Repository, journal *ledger.Journal) error) error {
	if tx, ok := s.repo.(store.Transactor); ok {
		return tx.InTx(ctx, func(repo store.Repository) error {
			return fn(repo, ledger.New(repo).Begin())
		})
	}

	journal := s.ledger.Begin()
	err := fn(s.repo, journal)
	if err == nil {
		return nil
	}
	if rbErr := journal.Rollback(ctx); rbErr != nil {
		s.log.Error().Err(rbErr).AnErr("cause", err).Msg("stock compensation incomplete")
	}
	return err
}

// lockSale serializes read-validate-write sequences on one sale when the
// repository has no transactions. The returned func releases the lock.
func (s *Service) lockSale(saleID string) func() {
	if _, ok := s.repo.(store.Transactor); ok {
		return func() {}
	}
	return s.saleLocks.lock(saleID)
}

type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// RecordAudit stores one audit entry for the calling identity. Failures are
// logged and never surfaced to the caller.
func (s *Service) RecordAudit(ctx context.Context, endpoint string, method string, payload []byte) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		identity = domain.Identity{UserID: "anonymous"}
	}

	entry := domain.AuditLog{
		ID:        xid.New("aud"),
		Endpoint:  endpoint,
		Method:    method,
		UserID:    identity.UserID,
		UserEmail: identity.Email,
		Payload:   truncatePayload(payload),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("endpoint", endpoint).Str("user_id", identity.UserID).Msg("failed to write audit log")
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func truncatePayload(payload []byte) string {
	if len(payload) <= maxAuditPayload {
		return string(payload)
	}
	n := maxAuditPayload
	for n > 0 && !utf8.RuneStart(payload[n]) {
		n--
	}
	return string(payload[:n])
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx, reportKeyPrefix); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate report cache")
	}
}

func isClientError(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInvalidInput) ||
		errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidReturnQuantity)
}
