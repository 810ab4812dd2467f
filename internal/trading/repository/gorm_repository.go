package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Aidin1998/tickbook/internal/trading/config"
	"github.com/Aidin1998/tickbook/internal/trading/model"
	applog "github.com/Aidin1998/tickbook/pkg/logger"
)

// TickRow is one snapshotted tick. Timeout and timestamp are stored as text
// so that infinities and the exact float bits survive every SQL dialect.
type TickRow struct {
	ID               uint   `gorm:"primaryKey"`
	SnapshotID       string `gorm:"size:36;index"`
	Seq              int    `gorm:"index"`
	Direction        string `gorm:"size:8"`
	TraderID         string
	MessageNumber    string
	OrderNumber      string
	PriceMantissa    int64
	PriceTag         string `gorm:"size:16"`
	QuantityMantissa int64
	QuantityTag      string `gorm:"size:16"`
	Timeout          string `gorm:"size:32"`
	Timestamp        string `gorm:"size:32"`
	CreatedAt        time.Time
}

func (TickRow) TableName() string { return "snapshot_ticks" }

// SQLStore keeps the snapshot in a SQL table through GORM. Save rewrites the
// table inside one transaction.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore migrates the snapshot table on db.
func NewSQLStore(db *gorm.DB, log *zap.Logger) (*SQLStore, error) {
	if err := db.AutoMigrate(&TickRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}
	return &SQLStore{db: db, logger: applog.OrNop(log).Named("sql_store")}, nil
}

// NewSQLiteStore opens a SQLite database file.
func NewSQLiteStore(path string, pool config.PoolConfig, log *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	pool.MaxOpenConns = 1
	return openSQLStore(db, pool, log)
}

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(dsn string, pool config.PoolConfig, log *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return openSQLStore(db, pool, log)
}

// openSQLStore finishes the setup of a freshly opened db. The connection is
// closed when any step fails.
func openSQLStore(db *gorm.DB, pool config.PoolConfig, log *zap.Logger) (*SQLStore, error) {
	err := applyPool(db, pool)
	var store *SQLStore
	if err == nil {
		store, err = NewSQLStore(db, log)
	}
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return store, nil
}

func applyPool(db *gorm.DB, pool config.PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func toRow(snapshotID string, seq int, t *model.Tick) TickRow {
	return TickRow{
		SnapshotID:       snapshotID,
		Seq:              seq,
		Direction:        t.Direction().String(),
		TraderID:         string(t.MessageID().Trader),
		MessageNumber:    string(t.MessageID().Number),
		OrderNumber:      string(t.OrderID().Number),
		PriceMantissa:    t.Price().Mantissa(),
		PriceTag:         t.Price().Tag(),
		QuantityMantissa: t.Quantity().Mantissa(),
		QuantityTag:      t.Quantity().Tag(),
		Timeout:          formatFloat(t.Timeout().Seconds()),
		Timestamp:        formatFloat(t.Timestamp().Seconds()),
	}
}

func fromRow(r TickRow) (*model.Tick, error) {
	dir, err := model.ParseDirection(r.Direction)
	if err != nil {
		return nil, err
	}
	price, err := model.NewPrice(r.PriceMantissa, r.PriceTag)
	if err != nil {
		return nil, err
	}
	qty, err := model.NewQuantity(r.QuantityMantissa, r.QuantityTag)
	if err != nil {
		return nil, err
	}
	timeout, err := strconv.ParseFloat(r.Timeout, 64)
	if err != nil {
		return nil, fmt.Errorf("row %d timeout: %w", r.ID, err)
	}
	ts, err := strconv.ParseFloat(r.Timestamp, 64)
	if err != nil {
		return nil, fmt.Errorf("row %d timestamp: %w", r.ID, err)
	}
	trader := model.TraderID(r.TraderID)
	return model.NewTick(dir,
		model.NewMessageID(trader, model.MessageNumber(r.MessageNumber)),
		model.NewOrderID(trader, model.OrderNumber(r.OrderNumber)),
		price, qty, model.Timeout(timeout), model.Timestamp(ts))
}

// Save replaces the stored snapshot with ticks.
func (s *SQLStore) Save(ctx context.Context, ticks []*model.Tick) error {
	snapshotID := uuid.New().String()
	rows := make([]TickRow, len(ticks))
	for i, t := range ticks {
		rows[i] = toRow(snapshotID, i, t)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TickRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		s.logger.Error("Failed to save snapshot", zap.Error(err), zap.String("snapshot_id", snapshotID))
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.logger.Debug("Snapshot saved", zap.String("snapshot_id", snapshotID), zap.Int("ticks", len(ticks)))
	return nil
}

// Load returns the stored ticks in save order.
func (s *SQLStore) Load(ctx context.Context) ([]*model.Tick, error) {
	var rows []TickRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	ticks := make([]*model.Tick, 0, len(rows))
	for _, r := range rows {
		t, err := fromRow(r)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
