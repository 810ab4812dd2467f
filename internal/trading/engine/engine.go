package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/internal/trading/orderbook"
)

// CheckpointObserver is told about every snapshot attempt.
type CheckpointObserver interface {
	CheckpointDone(err error, took time.Duration)
}

type nopCheckpoints struct{}

func (nopCheckpoints) CheckpointDone(error, time.Duration) {}

// Settings controls the engine loops.
type Settings struct {
	ExpiryInterval   time.Duration
	SnapshotInterval time.Duration
	PurgeFilled      bool
	ShutdownTimeout  time.Duration

	// Consecutive checkpoint failures before checkpoints pause for
	// BreakerCooldown. Zero never pauses.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultSettings returns settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		ExpiryInterval:   time.Second,
		SnapshotInterval: time.Minute,
		PurgeFilled:      true,
		ShutdownTimeout:  10 * time.Second,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
	}
}

// Engine owns one order book and serializes every access to it. It drives
// the book's timeouts and takes snapshots of the resting ticks.
type Engine struct {
	mu    sync.Mutex
	book  *orderbook.OrderBook
	clock model.Clock
	store model.TickStore

	settings    Settings
	breaker     *CircuitBreaker
	checkpoints CheckpointObserver
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c model.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithStore enables restore and checkpoints. A nil store disables them.
func WithStore(s model.TickStore) Option {
	return func(e *Engine) { e.store = s }
}

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

func WithCheckpointObserver(o CheckpointObserver) Option {
	return func(e *Engine) {
		if o != nil {
			e.checkpoints = o
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine wraps book. The clock must be the one the book was built with.
func NewEngine(book *orderbook.OrderBook, opts ...Option) *Engine {
	e := &Engine{
		book:        book,
		clock:       model.SystemClock{},
		settings:    DefaultSettings(),
		checkpoints: nopCheckpoints{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.settings.ExpiryInterval <= 0 {
		e.settings.ExpiryInterval = time.Second
	}
	if e.settings.ShutdownTimeout <= 0 {
		e.settings.ShutdownTimeout = 10 * time.Second
	}
	e.breaker = NewCircuitBreaker(e.settings.BreakerThreshold, e.settings.BreakerCooldown)
	e.logger = e.logger.Named("engine").With(zap.Stringer("market", book.Market()))
	return e
}

func (e *Engine) InsertAsk(tick *model.Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.InsertAsk(tick)
}

func (e *Engine) InsertBid(tick *model.Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.InsertBid(tick)
}

func (e *Engine) RemoveTick(id model.OrderID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.RemoveTick(id)
}

func (e *Engine) TradeTick(a, b model.OrderID, qty model.Quantity, cutoff model.Timestamp) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.TradeTick(a, b, qty, cutoff)
}

func (e *Engine) InsertTrade(trade model.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.InsertTrade(trade)
}

// View runs fn with exclusive access to the book. fn must not keep
// references to entries or levels after it returns.
func (e *Engine) View(fn func(*orderbook.OrderBook)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.book)
}

// Sweep delivers due timeouts and, if configured, purges filled entries.
func (e *Engine) Sweep() (expired, purged int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	expired = e.book.ExpireDue(e.clock.Now())
	if e.settings.PurgeFilled {
		purged = len(e.book.PurgeFilled())
	}
	if expired > 0 || purged > 0 {
		e.logger.Debug("sweep", zap.Int("expired", expired), zap.Int("purged", purged))
	}
	return expired, purged
}

// Restore loads the last snapshot into the book. It returns the number of
// ticks that were still valid and inserted.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	ticks, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Error("Failed to load snapshot", zap.Error(err))
		return 0, fmt.Errorf("restore: %w", err)
	}
	e.mu.Lock()
	n := e.book.Restore(ticks)
	e.mu.Unlock()
	return n, nil
}

// Checkpoint saves the ticks valid now. The book is only locked while the
// ticks are collected. After repeated failures checkpoints are skipped with
// ErrCircuitBreakerOpen until the cooldown passes.
func (e *Engine) Checkpoint(ctx context.Context) error {
	return e.checkpoint(ctx, false)
}

func (e *Engine) checkpoint(ctx context.Context, force bool) error {
	if e.store == nil {
		return nil
	}
	id := uuid.New()

	e.mu.Lock()
	ticks := e.book.ValidTicks(e.clock.Now())
	e.mu.Unlock()

	save := func() error { return e.store.Save(ctx, ticks) }
	start := time.Now()
	var err error
	if force {
		err = save()
	} else {
		err = e.breaker.Call(save)
	}
	if errors.Is(err, ErrCircuitBreakerOpen) {
		e.logger.Warn("Checkpoint skipped", zap.Stringer("checkpoint_id", id), zap.Error(err))
		return fmt.Errorf("checkpoint %s: %w", id, err)
	}
	took := time.Since(start)
	e.checkpoints.CheckpointDone(err, took)
	if err != nil {
		e.logger.Error("Checkpoint failed",
			zap.Stringer("checkpoint_id", id),
			zap.String("breaker", e.breaker.State()),
			zap.Error(err),
		)
		return fmt.Errorf("checkpoint %s: %w", id, err)
	}
	e.logger.Info("Checkpoint saved",
		zap.Stringer("checkpoint_id", id),
		zap.Int("ticks", len(ticks)),
		zap.Duration("took", took),
	)
	return nil
}

// Run sweeps timeouts and takes periodic checkpoints until ctx is done,
// then takes a final checkpoint.
func (e *Engine) Run(ctx context.Context) error {
	sweep := time.NewTicker(e.settings.ExpiryInterval)
	defer sweep.Stop()

	var snapshots <-chan time.Time
	if e.store != nil && e.settings.SnapshotInterval > 0 {
		t := time.NewTicker(e.settings.SnapshotInterval)
		defer t.Stop()
		snapshots = t.C
	}

	e.logger.Info("Engine started",
		zap.Duration("expiry_interval", e.settings.ExpiryInterval),
		zap.Duration("snapshot_interval", e.settings.SnapshotInterval),
	)
	for {
		select {
		case <-ctx.Done():
			e.Sweep()
			sctx, cancel := context.WithTimeout(context.Background(), e.settings.ShutdownTimeout)
			err := e.checkpoint(sctx, true)
			cancel()
			e.logger.Info("Engine stopped")
			return err
		case <-sweep.C:
			e.Sweep()
		case <-snapshots:
			// failure is logged and counted; the next interval retries
			_ = e.Checkpoint(ctx)
		}
	}
}
