// Package audit provides an append-only ExportAuditLog backed by BadgerDB.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/store"
)

const (
	recordPrefix = "audit/rec/"
	indexPrefix  = "audit/idx/"
)

// Config configures the badger database
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// badgerLogger adapts zap to badger's Logger interface
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// BadgerStore implements store.AuditStore.
// Records are written once; only state, attestedAt and finalizedAt change afterwards.
type BadgerStore struct {
	db *badger.DB
}

var _ store.AuditStore = (*BadgerStore)(nil)

// Open opens the audit database at cfg.Path, or in memory
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent audit log")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create audit directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

// indexKey sorts a proposal's records by timestamp, then id
func indexKey(rec model.AuditRecord) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", indexPrefix, rec.ProposalID, rec.Timestamp.UnixNano(), rec.ID))
}

func getRecord(txn *badger.Txn, id string) (*model.AuditRecord, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("audit record %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record %s: %w", id, err)
	}

	var rec model.AuditRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode audit record %s: %w", id, err)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, rec *model.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record %s: %w", rec.ID, err)
	}
	return txn.Set(recordKey(rec.ID), data)
}

func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("concurrent audit update: %w", store.ErrConflict)
	}
	return err
}

// AppendAudit writes a new record; an existing id is a conflict
func (s *BadgerStore) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(rec.ID))
		if err == nil {
			return fmt.Errorf("audit record %s: %w", rec.ID, store.ErrConflict)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check audit record %s: %w", rec.ID, err)
		}
		if err := putRecord(txn, &rec); err != nil {
			return err
		}
		return txn.Set(indexKey(rec), nil)
	})
}

// GetAudit reads one record
func (s *BadgerStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *model.AuditRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

// ListAudit returns the proposal's records oldest first
func (s *BadgerStore) ListAudit(ctx context.Context, proposalID string) ([]model.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(indexPrefix + proposalID + "/")
	var out []model.AuditRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := key[strings.LastIndex(key, "/")+1:]
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return nil
	})
	return out, err
}

// Attest moves WARN_NEEDS_ATTESTATION to WARN_ACKNOWLEDGED inside one transaction
func (s *BadgerStore) Attest(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	var out *model.AuditRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if rec.State != model.StateWarnNeedsAttestation {
			return fmt.Errorf("audit record %s is %s: %w", id, rec.State, store.ErrConflict)
		}
		t := at.UTC()
		rec.State = model.StateWarnAcknowledged
		rec.AttestedAt = &t
		out = rec
		return putRecord(txn, rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkFinalized stamps FinalizedAt on an exportable record that was not finalized yet
func (s *BadgerStore) MarkFinalized(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	var out *model.AuditRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if !rec.State.Exportable() || rec.FinalizedAt != nil {
			return fmt.Errorf("audit record %s is %s: %w", id, rec.State, store.ErrConflict)
		}
		t := at.UTC()
		rec.FinalizedAt = &t
		out = rec
		return putRecord(txn, rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
