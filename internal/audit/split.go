package audit

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

// splitStore routes audit operations to badger and everything else to base
type splitStore struct {
	store.Store
	audit *BadgerStore
}

// WithBadger returns a store.Store whose audit log lives in log
func WithBadger(base store.Store, log *BadgerStore) store.Store {
	return &splitStore{Store: base, audit: log}
}

func (s *splitStore) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	return s.audit.AppendAudit(ctx, rec)
}

func (s *splitStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	return s.audit.GetAudit(ctx, id)
}

func (s *splitStore) ListAudit(ctx context.Context, proposalID string) ([]model.AuditRecord, error) {
	return s.audit.ListAudit(ctx, proposalID)
}

func (s *splitStore) Attest(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	return s.audit.Attest(ctx, id, at)
}

func (s *splitStore) MarkFinalized(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	return s.audit.MarkFinalized(ctx, id, at)
}

func (s *splitStore) Close() error {
	return errors.Join(s.audit.Close(), s.Store.Close())
}
