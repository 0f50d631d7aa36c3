// Package sqlstore implements core.SessionStore with gorm. State and event
// history are stored as JSON columns of a single sessions table.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
)

type sessionRow struct {
	AppName   string         `gorm:"primaryKey;size:128"`
	UserID    string         `gorm:"primaryKey;size:128;index"`
	SessionID string         `gorm:"primaryKey;size:128"`
	State     map[string]any `gorm:"serializer:json"`
	Events    []core.Event   `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func (r *sessionRow) session() *core.Session {
	sess := core.NewSession(core.SessionKey{AppName: r.AppName, UserID: r.UserID, SessionID: r.SessionID})
	if r.State != nil {
		sess.State = r.State
	}
	if r.Events != nil {
		sess.Events = r.Events
	}
	sess.Created = r.CreatedAt
	sess.Updated = r.UpdatedAt
	return sess
}

func (r *sessionRow) apply(delta map[string]any) {
	if r.State == nil {
		r.State = map[string]any{}
	}
	for k, v := range core.PersistableDelta(delta) {
		r.State[k] = v
	}
}

// Options configures a Store.
type Options struct {
	Logger logging.Logger
}

// Store persists sessions through gorm.
type Store struct {
	db     *gorm.DB
	logger logging.Logger
}

// New migrates the sessions table on db and returns a store using it.
func New(db *gorm.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sessions table: %w", err)
	}

	return &Store{db: db, logger: opts.Logger}, nil
}

// OpenSQLite opens (or creates) a sqlite database at dsn. Writes are
// serialized over a single connection.
func OpenSQLite(dsn string, optFns ...func(o *Options)) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db, optFns...)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func where(db *gorm.DB, key core.SessionKey) *gorm.DB {
	return db.Where("app_name = ? AND user_id = ? AND session_id = ?", key.AppName, key.UserID, key.SessionID)
}

// Create inserts a new session. An empty SessionID is replaced by a uuid.
func (s *Store) Create(ctx context.Context, key core.SessionKey, state map[string]any) (*core.Session, error) {
	if key.SessionID == "" {
		key.SessionID = uuid.NewString()
	}

	row := &sessionRow{
		AppName:   key.AppName,
		UserID:    key.UserID,
		SessionID: key.SessionID,
		State:     map[string]any{},
		Events:    []core.Event{},
	}
	row.apply(state)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := where(tx.Model(&sessionRow{}), key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return core.ErrSessionExists
		}
		return tx.Create(row).Error
	})
	if errors.Is(err, core.ErrSessionExists) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("session.created", "backend", "sql", "session_id", key.SessionID)

	return row.session(), nil
}

// Get loads a session or returns core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	row, err := s.find(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	return row.session(), nil
}

// List returns the sessions of appName (optionally one user), newest first,
// without event histories.
func (s *Store) List(ctx context.Context, appName, userID string) ([]*core.Session, error) {
	q := s.db.WithContext(ctx).Omit("Events").Where("app_name = ?", appName)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}

	var rows []sessionRow
	if err := q.Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]*core.Session, 0, len(rows))
	for i := range rows {
		sess := rows[i].session()
		sess.Events = nil
		out = append(out, sess)
	}
	return out, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, key core.SessionKey) error {
	if err := where(s.db.WithContext(ctx), key).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AppendEvent adds a non-partial event and applies its state delta.
func (s *Store) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	return s.update(ctx, key, func(row *sessionRow) bool {
		if ev.IsPartial() {
			return false
		}
		row.apply(ev.Actions.StateDelta)
		row.Events = append(row.Events, ev)
		return true
	})
}

// ApplyDelta merges delta into the session state.
func (s *Store) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	return s.update(ctx, key, func(row *sessionRow) bool {
		row.apply(delta)
		return true
	})
}

func (s *Store) update(ctx context.Context, key core.SessionKey, mutate func(row *sessionRow) bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, key)
		if err != nil {
			return err
		}
		if !mutate(row) {
			return nil
		}
		if err := tx.Save(row).Error; err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

func (s *Store) find(db *gorm.DB, key core.SessionKey) (*sessionRow, error) {
	var row sessionRow
	err := where(db, key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &row, nil
}
