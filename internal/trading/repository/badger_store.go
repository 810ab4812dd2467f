package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/logger"
)

var (
	tickPrefix = []byte("tick/")
	currentKey = []byte("snapshot/current")
)

// BadgerStore persists snapshots in BadgerDB. Every save writes a new
// generation of keys under tick/<generation>/ and then points
// snapshot/current at it, so a reader sees either the old or the new
// snapshot. Older generations are dropped after the switch.
type BadgerStore struct {
	mu     sync.Mutex
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens (or creates) the store at path.
func NewBadgerStore(path string, log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return openBadger(opts, log)
}

// NewInMemoryBadgerStore keeps the snapshot in memory only.
func NewInMemoryBadgerStore(log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts, log)
}

func openBadger(opts badger.Options, log *zap.Logger) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return &BadgerStore{db: db, logger: logger.OrNop(log).Named("badger_store")}, nil
}

func generationPrefix(gen uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", tickPrefix, gen))
}

func tickKey(gen uint64, seq int) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", tickPrefix, gen, seq))
}

// readGeneration returns the generation snapshot/current points at, zero
// when nothing was saved yet.
func readGeneration(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(currentKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var gen uint64
	err = item.Value(func(v []byte) error {
		gen, err = strconv.ParseUint(string(v), 10, 64)
		return err
	})
	return gen, err
}

// Save replaces the stored snapshot with ticks.
func (s *BadgerStore) Save(ctx context.Context, ticks []*model.Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	if err := s.db.View(func(txn *badger.Txn) (err error) {
		current, err = readGeneration(txn)
		return err
	}); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	next := current + 1

	// A save that failed before the switch may have left keys behind.
	if err := s.db.DropPrefix(generationPrefix(next)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if err := s.writeGeneration(ctx, next, ticks); err != nil {
		if dropErr := s.db.DropPrefix(generationPrefix(next)); dropErr != nil {
			s.logger.Warn("failed to drop partial snapshot", zap.Uint64("generation", next), zap.Error(dropErr))
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(currentKey, []byte(strconv.FormatUint(next, 10)))
	}); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if current > 0 {
		if err := s.db.DropPrefix(generationPrefix(current)); err != nil {
			s.logger.Warn("failed to drop old snapshot", zap.Uint64("generation", current), zap.Error(err))
		}
	}
	s.logger.Debug("snapshot saved", zap.Uint64("generation", next), zap.Int("ticks", len(ticks)))
	return nil
}

func (s *BadgerStore) writeGeneration(ctx context.Context, gen uint64, ticks []*model.Tick) error {
	wb := s.db.NewWriteBatch()
	for i, t := range ticks {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				wb.Cancel()
				return err
			}
		}
		v, err := encodeTick(t)
		if err == nil {
			err = wb.Set(tickKey(gen, i), v)
		}
		if err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

// Load returns the ticks of the current snapshot in save order.
func (s *BadgerStore) Load(ctx context.Context) ([]*model.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ticks []*model.Tick
	err := s.db.View(func(txn *badger.Txn) error {
		gen, err := readGeneration(txn)
		if err != nil || gen == 0 {
			return err
		}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: generationPrefix(gen), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				t, err := decodeTick(v)
				if err != nil {
					return err
				}
				ticks = append(ticks, t)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return ticks, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
