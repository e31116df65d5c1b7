package store

import (
	"errors"
	"fmt"
	"time"

	sqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
)

// ErrTaskNotFound is returned by GetTask for unknown IDs.
var ErrTaskNotFound = errors.New("store: task not found")

// GormStore is the database-backed Store (sqlite by default, MySQL for
// shared deployments).
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite database at path.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	return &GormStore{db: db}, nil
}

// MySQLDSN builds the DSN for a MySQL-compatible server.
func MySQLDSN(host string, port int, user, database string) string {
	cfg := sqldriver.NewConfig()
	cfg.User = user
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// OpenMySQL connects to a MySQL-compatible server.
func OpenMySQL(host string, port int, user, database string) (*GormStore, error) {
	dsn := MySQLDSN(host, port, user, database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing connection (used by tests).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Task{},
		&models.TaskLog{},
		&models.AgentRun{},
	}
}

// AutoMigrate creates or updates all tables.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("store: auto-migrate: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for one-off admin commands.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) CreateTask(task *models.Task) error {
	if err := s.db.Create(task).Error; err != nil {
		return fmt.Errorf("store: create task %s: %w", task.ID, err)
	}
	return nil
}

func (s *GormStore) GetTask(id string) (*models.Task, error) {
	var task models.Task
	err := s.db.First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	return &task, nil
}

func (s *GormStore) ListTasks() ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return tasks, nil
}

func (s *GormStore) UpdateTask(task *models.Task) error {
	if err := s.db.Save(task).Error; err != nil {
		return fmt.Errorf("store: update task %s: %w", task.ID, err)
	}
	return nil
}

func (s *GormStore) SetStatus(id, status string) error {
	res := s.db.Model(&models.Task{}).Where("id = ?", id).Update("agent_status", status)
	if res.Error != nil {
		return fmt.Errorf("store: set status for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *GormStore) AppendEntries(taskID string, entries []agent.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]models.TaskLog, len(entries))
	for i, e := range entries {
		rows[i] = EntryToLog(taskID, e)
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("store: append logs for %s: %w", taskID, err)
	}
	return nil
}

func (s *GormStore) LogsAfter(taskID string, afterSeq int) ([]models.TaskLog, error) {
	var rows []models.TaskLog
	err := s.db.Where("task_id = ? AND seq > ?", taskID, afterSeq).
		Order("seq ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: logs for %s: %w", taskID, err)
	}
	return rows, nil
}

func (s *GormStore) RecordRun(run *models.AgentRun) error {
	if err := s.db.Create(run).Error; err != nil {
		return fmt.Errorf("store: record run for %s: %w", run.TaskID, err)
	}
	return nil
}

func (s *GormStore) TokenTotals(taskID string) (TokenTotals, error) {
	var totals TokenTotals
	err := s.db.Model(&models.Task{}).
		Select("COALESCE(SUM(input_tokens),0) as input_tokens, COALESCE(SUM(output_tokens),0) as output_tokens, COALESCE(SUM(input_tokens+output_tokens+cache_creation_tokens+cache_read_tokens),0) as total_tokens, COALESCE(SUM(cost_usd),0) as cost_usd").
		Where("id = ?", taskID).
		Scan(&totals).Error
	if err != nil {
		return totals, fmt.Errorf("store: token totals for %s: %w", taskID, err)
	}
	return totals, nil
}

func (s *GormStore) StaleRunning(cutoff time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.Where("agent_status = ? AND updated_at < ?", models.StatusRunning, cutoff).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("store: stale running tasks: %w", err)
	}
	return tasks, nil
}
