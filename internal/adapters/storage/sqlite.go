// Package storage implements the application store (jobs, job logs,
// watchlists, alerts) using GORM and SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteAdapter implements ports.JobStore, ports.WatchlistStore and
// ports.AlertStore.
type SQLiteAdapter struct {
	db *gorm.DB
}

// JobModel is the GORM model for ingestion jobs.
type JobModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	Kind      string
	Status    string `gorm:"index"`
	Phase     string
	StartedAt time.Time
	EndedAt   *time.Time
	Heartbeat time.Time
	Error     string

	ItemsProcessed int
	ItemsAdded     int
	ItemsUpdated   int
	ItemsUnchanged int
	ItemsErrored   int
	TotalExpected  int
}

// JobLogModel stores append-only log entries scoped to a job.
type JobLogModel struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	JobID    int64 `gorm:"index"`
	Time     time.Time
	Level    string
	Message  string
	Metadata string // JSON encoded map[string]string
}

// WatchlistModel is the GORM model for watchlists. The query is stored as a
// JSON document.
type WatchlistModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Query      string
	Enabled    bool `gorm:"index"`
	CreatedAt  time.Time
	LastRun    time.Time
	MatchCount int
}

// AlertModel is the GORM model for alerts. WatchlistName is denormalized on
// purpose: alerts outlive their watchlist.
type AlertModel struct {
	ID            string `gorm:"primaryKey"`
	RecordID      string `gorm:"index"`
	WatchlistID   string `gorm:"index"`
	WatchlistName string
	Type          string
	CreatedAt     time.Time
	Read          bool `gorm:"index"`
}

// NewSQLiteAdapter initializes the database and migrates the schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// WAL keeps the API readable while an ingestion writes.
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	if err := db.AutoMigrate(&JobModel{}, &JobLogModel{}, &WatchlistModel{}, &AlertModel{}); err != nil {
		return nil, err
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_job_logs_job_time ON job_log_models(job_id, id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_alerts_created ON alert_models(created_at)")

	return &SQLiteAdapter{db: db}, nil
}

// --- JobStore ---

// CreateJob inserts a new job and backfills its generated id.
func (a *SQLiteAdapter) CreateJob(ctx context.Context, job *domain.IngestionJob) error {
	model := toJobModel(job)
	if err := a.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	job.ID = model.ID
	return nil
}

// UpdateJob persists the full job state.
func (a *SQLiteAdapter) UpdateJob(ctx context.Context, job *domain.IngestionJob) error {
	model := toJobModel(job)
	res := a.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", job.ID).
		Select("*").Omit("id").Updates(&model)
	if res.Error != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// GetJob returns a job by id.
func (a *SQLiteAdapter) GetJob(ctx context.Context, id int64) (*domain.IngestionJob, error) {
	var model JobModel
	err := a.db.WithContext(ctx).First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job := toJobDomain(&model)
	return &job, nil
}

// ListJobs returns jobs newest first.
func (a *SQLiteAdapter) ListJobs(ctx context.Context, limit int) ([]domain.IngestionJob, error) {
	var models []JobModel
	q := a.db.WithContext(ctx).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	jobs := make([]domain.IngestionJob, len(models))
	for i := range models {
		jobs[i] = toJobDomain(&models[i])
	}
	return jobs, nil
}

// ActiveJob returns the RUNNING job, or nil when none is running.
func (a *SQLiteAdapter) ActiveJob(ctx context.Context) (*domain.IngestionJob, error) {
	var model JobModel
	err := a.db.WithContext(ctx).Where("status = ?", domain.JobRunning).Order("id desc").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job := toJobDomain(&model)
	return &job, nil
}

// AppendLog persists a log entry and backfills its id.
func (a *SQLiteAdapter) AppendLog(ctx context.Context, entry *domain.JobLogEntry) error {
	model := toLogModel(entry)
	if err := a.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	entry.ID = model.ID
	return nil
}

// ListLogs returns a job's log entries in append order.
func (a *SQLiteAdapter) ListLogs(ctx context.Context, jobID int64, limit int) ([]domain.JobLogEntry, error) {
	var models []JobLogModel
	q := a.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.JobLogEntry, len(models))
	for i := range models {
		entries[i] = toLogDomain(&models[i])
	}
	return entries, nil
}

// DeleteJob removes a job and cascades to its log entries.
func (a *SQLiteAdapter) DeleteJob(ctx context.Context, id int64) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", id).Delete(&JobLogModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&JobModel{}, id).Error
	})
}

// --- WatchlistStore ---

func (a *SQLiteAdapter) CreateWatchlist(ctx context.Context, w *domain.Watchlist) error {
	model, err := toWatchlistModel(w)
	if err != nil {
		return err
	}
	return a.db.WithContext(ctx).Create(&model).Error
}

func (a *SQLiteAdapter) UpdateWatchlist(ctx context.Context, w *domain.Watchlist) error {
	model, err := toWatchlistModel(w)
	if err != nil {
		return err
	}
	res := a.db.WithContext(ctx).Model(&WatchlistModel{}).Where("id = ?", w.ID).
		Select("*").Omit("id").Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWatchlistNotFound
	}
	return nil
}

// DeleteWatchlist removes the watchlist only. Alerts referencing it are kept
// by the alert-retention invariant.
func (a *SQLiteAdapter) DeleteWatchlist(ctx context.Context, id string) error {
	res := a.db.WithContext(ctx).Delete(&WatchlistModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWatchlistNotFound
	}
	return nil
}

func (a *SQLiteAdapter) GetWatchlist(ctx context.Context, id string) (*domain.Watchlist, error) {
	var model WatchlistModel
	err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWatchlistNotFound
	}
	if err != nil {
		return nil, err
	}
	return toWatchlistDomain(&model)
}

func (a *SQLiteAdapter) ListWatchlists(ctx context.Context) ([]domain.Watchlist, error) {
	return a.listWatchlists(ctx, false)
}

func (a *SQLiteAdapter) ListEnabledWatchlists(ctx context.Context) ([]domain.Watchlist, error) {
	return a.listWatchlists(ctx, true)
}

func (a *SQLiteAdapter) listWatchlists(ctx context.Context, enabledOnly bool) ([]domain.Watchlist, error) {
	var models []WatchlistModel
	q := a.db.WithContext(ctx).Order("created_at asc")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	lists := make([]domain.Watchlist, 0, len(models))
	for i := range models {
		w, err := toWatchlistDomain(&models[i])
		if err != nil {
			return nil, err
		}
		lists = append(lists, *w)
	}
	return lists, nil
}

// --- AlertStore ---

func (a *SQLiteAdapter) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	model := toAlertModel(alert)
	return a.db.WithContext(ctx).Create(&model).Error
}

func (a *SQLiteAdapter) ListAlerts(ctx context.Context, unreadOnly bool, limit int) ([]domain.Alert, error) {
	var models []AlertModel
	q := a.db.WithContext(ctx).Order("created_at desc, id desc")
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, len(models))
	for i := range models {
		alerts[i] = toAlertDomain(&models[i])
	}
	return alerts, nil
}

func (a *SQLiteAdapter) SetAlertRead(ctx context.Context, id string, read bool) error {
	res := a.db.WithContext(ctx).Model(&AlertModel{}).Where("id = ?", id).Update("read", read)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

func (a *SQLiteAdapter) DeleteAlert(ctx context.Context, id string) error {
	res := a.db.WithContext(ctx).Delete(&AlertModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

func (a *SQLiteAdapter) MarkAllAlerts(ctx context.Context, read bool) error {
	return a.db.WithContext(ctx).Model(&AlertModel{}).Where("read = ?", !read).Update("read", read).Error
}

func (a *SQLiteAdapter) DeleteAllAlerts(ctx context.Context) error {
	return a.db.WithContext(ctx).Where("1 = 1").Delete(&AlertModel{}).Error
}

func (a *SQLiteAdapter) CountUnread(ctx context.Context) (int, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&AlertModel{}).Where("read = ?", false).Count(&count).Error
	return int(count), err
}

// Close releases the underlying connection pool.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
