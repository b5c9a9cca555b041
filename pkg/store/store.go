package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunMeta carries the run attributes that results.RunResult lacks.
type RunMeta struct {
	Hostname   string
	NVMe       int
	ResultsDir string
}

// Store persists the history of checkout runs.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// SaveRun stores a finished run with its tests and steps.
	SaveRun(ctx context.Context, run *results.RunResult, meta RunMeta) (*Run, error)
	// ListRuns returns the most recent runs first, without tests.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// GetRun returns a run with its tests and steps.
	GetRun(ctx context.Context, runID string) (*Run, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.StoreConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.StoreConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&TestRecord{},
		&StepRecord{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// SaveRun implements Store.
func (s *store) SaveRun(ctx context.Context, run *results.RunResult, meta RunMeta) (*Run, error) {
	record := &Run{
		RunID:      run.ID,
		Hostname:   meta.Hostname,
		NVMe:       meta.NVMe,
		ResultsDir: meta.ResultsDir,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Failed:     run.Failed,
		Tests:      make([]TestRecord, 0, len(run.Tests)),
	}

	for _, t := range run.Tests {
		test := TestRecord{
			Number:     t.Number,
			Name:       t.Name,
			Dir:        t.Dir,
			Errors:     t.Errors,
			Passed:     t.Passed,
			StartedAt:  t.StartedAt,
			DurationMS: t.DurationMS,
			Steps:      make([]StepRecord, 0, len(t.Steps)),
		}

		for _, st := range t.Steps {
			test.Steps = append(test.Steps, StepRecord{
				Seq:        st.Seq,
				Name:       st.Name,
				Dir:        st.Dir,
				Code:       st.Code,
				DurationMS: st.DurationMS,
			})
		}

		record.Tests = append(record.Tests, test)
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("saving run %s: %w", run.ID, err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"tests":  len(record.Tests),
	}).Info("Run saved to history")

	return record, nil
}

// ListRuns implements Store.
func (s *store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run

	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// GetRun implements Store.
func (s *store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).
		Preload("Tests", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Tests.Steps", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}

	return &run, nil
}
