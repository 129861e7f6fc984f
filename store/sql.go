package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bayonhq/coagent/workflow"
)

// SQLConfig configures the SQL-backed store.
type SQLConfig struct {
	// Driver is one of "sqlite", "postgres", "mysql".
	Driver string `json:"driver" yaml:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is the
	// database path (":memory:" for an in-memory database).
	DSN string `json:"dsn" yaml:"dsn"`
}

// runRecord is the relational shape of a run: query columns for listing plus
// the full JSON snapshot for faithful round-trips.
type runRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	OwnerID   string `gorm:"index;size:64"`
	Type      string `gorm:"size:64"`
	Status    string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Snapshot  []byte `gorm:"type:blob"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (runRecord) TableName() string { return "workflow_runs" }

// SQLStore persists workflow runs in a relational database via gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens the configured database and migrates the runs table.
func NewSQLStore(cfg SQLConfig) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, fmt.Errorf("migrate workflow_runs: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, run *workflow.Run) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	record := runRecord{
		ID:        run.ID,
		OwnerID:   run.OwnerID,
		Type:      run.Type,
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt,
		UpdatedAt: time.Now().UTC(),
		Snapshot:  snapshot,
	}

	err = s.db.WithContext(ctx).
		Save(&record).Error
	if err != nil {
		return fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, runID string) (*workflow.Run, error) {
	var record runRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var run workflow.Run
	if err := json.Unmarshal(record.Snapshot, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	return &run, nil
}

// ListByOwner implements Store. Runs are returned newest first.
func (s *SQLStore) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	var records []runRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list runs for owner %s: %w", ownerID, err)
	}

	out := make([]*workflow.Run, 0, len(records))
	for _, record := range records {
		var run workflow.Run
		if err := json.Unmarshal(record.Snapshot, &run); err != nil {
			return nil, fmt.Errorf("unmarshal run %s: %w", record.ID, err)
		}
		out = append(out, &run)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
