package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"releasegate/internal/core"
)

// runRecord is the database row of a run. Steps and the triggering event
// are stored as jsonb.
type runRecord struct {
	ID          string         `gorm:"type:varchar(36);primaryKey"`
	Workflow    string         `gorm:"type:varchar(100);not null"`
	Ref         string         `gorm:"type:varchar(255);not null"`
	Tag         string         `gorm:"type:varchar(255);index"`
	Commit      string         `gorm:"type:varchar(64)"`
	Version     string         `gorm:"type:varchar(255)"`
	Status      string         `gorm:"type:varchar(20);index"`
	FailureKind string         `gorm:"type:varchar(20)"`
	Error       string         `gorm:"type:text"`
	Event       datatypes.JSON `gorm:"type:jsonb"`
	Steps       datatypes.JSON `gorm:"type:jsonb"`
	Permissions datatypes.JSON `gorm:"type:jsonb"`
	StartedAt   time.Time      `gorm:"index"`
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (runRecord) TableName() string { return "release_runs" }

// GormStore keeps runs in postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects with dsn and migrates the runs table.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, fmt.Errorf("migrate runs table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Save(ctx context.Context, run *core.Run) error {
	rec, err := toRecord(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*core.Run, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}

func (s *GormStore) List(ctx context.Context, limit int) ([]*core.Run, error) {
	q := s.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []runRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return fromRecords(recs)
}

func (s *GormStore) ListByTag(ctx context.Context, tag string) ([]*core.Run, error) {
	var recs []runRecord
	err := s.db.WithContext(ctx).Where("tag = ?", tag).Order("started_at desc").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return fromRecords(recs)
}

func toRecord(run *core.Run) (*runRecord, error) {
	event, err := json.Marshal(run.Event)
	if err != nil {
		return nil, err
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return nil, err
	}
	perms, err := json.Marshal(run.Permissions)
	if err != nil {
		return nil, err
	}
	rec := &runRecord{
		ID:          run.ID,
		Workflow:    run.Workflow,
		Ref:         run.Event.Ref,
		Tag:         run.Tag,
		Commit:      run.Event.Commit,
		Version:     run.Version,
		Status:      string(run.Status),
		FailureKind: string(run.FailureKind),
		Error:       run.Error,
		Event:       datatypes.JSON(event),
		Steps:       datatypes.JSON(steps),
		Permissions: datatypes.JSON(perms),
		StartedAt:   run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		rec.FinishedAt = &t
	}
	return rec, nil
}

func fromRecord(rec *runRecord) (*core.Run, error) {
	run := &core.Run{
		ID:          rec.ID,
		Workflow:    rec.Workflow,
		Tag:         rec.Tag,
		Version:     rec.Version,
		Status:      core.RunStatus(rec.Status),
		FailureKind: core.FailureKind(rec.FailureKind),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
	}
	if rec.FinishedAt != nil {
		run.FinishedAt = *rec.FinishedAt
	}
	if err := unmarshalColumn(rec.Event, &run.Event); err != nil {
		return nil, fmt.Errorf("decode event of run %s: %w", rec.ID, err)
	}
	if err := unmarshalColumn(rec.Steps, &run.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of run %s: %w", rec.ID, err)
	}
	if err := unmarshalColumn(rec.Permissions, &run.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions of run %s: %w", rec.ID, err)
	}
	return run, nil
}

func fromRecords(recs []runRecord) ([]*core.Run, error) {
	out := make([]*core.Run, 0, len(recs))
	for i := range recs {
		run, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func unmarshalColumn(col datatypes.JSON, v any) error {
	if len(col) == 0 {
		return nil
	}
	return json.Unmarshal(col, v)
}
