package figcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dgallion1/groundtruth/internal/document"
)

const keyPrefix = "figdesc/"

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// TTL expires entries. Zero keeps them forever.
	TTL    time.Duration
	Logger *slog.Logger
}

// BadgerStore persists figure descriptions in an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens or creates the database.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent mode")
	}
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, ttl: cfg.TTL}, nil
}

func (s *BadgerStore) Get(_ context.Context, docID string) ([]document.FigureDescription, bool, error) {
	if err := validateDocID(docID); err != nil {
		return nil, false, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + docID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read figure cache: %w", err)
	}

	var descs []document.FigureDescription
	if err := json.Unmarshal(raw, &descs); err != nil {
		return nil, false, fmt.Errorf("decode figure cache: %w", err)
	}
	return descs, true, nil
}

func (s *BadgerStore) Put(_ context.Context, docID string, descs []document.FigureDescription) error {
	if err := validateDocID(docID); err != nil {
		return err
	}
	if descs == nil {
		descs = []document.FigureDescription{}
	}
	raw, err := json.Marshal(descs)
	if err != nil {
		return fmt.Errorf("encode figure cache: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+docID), raw)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
