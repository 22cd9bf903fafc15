package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/session"
)

// Postgres implements session.Persistence on PostgreSQL through GORM
type Postgres struct {
	db *gorm.DB
}

// SessionModel is the sessions table
type SessionModel struct {
	ID             string `gorm:"primaryKey"`
	ConfigName     string
	Variant        string `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Game           *string `gorm:"type:jsonb"`
}

func (SessionModel) TableName() string { return "sessions" }

// MetaModel holds counters shared by all sessions
type MetaModel struct {
	Key   string `gorm:"primaryKey"`
	Value int    `gorm:"not null"`
}

func (MetaModel) TableName() string { return "meta" }

// NewPostgres connects to dsn and migrates the schema
func NewPostgres(dsn string) (*Postgres, error) {
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&SessionModel{}, &MetaModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close closes the underlying connection pool
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) SaveSession(rec *session.Record) error {
	variant, err := json.Marshal(rec.Variant)
	if err != nil {
		return fmt.Errorf("failed to marshal variant: %w", err)
	}
	model := SessionModel{
		ID:             rec.ID,
		ConfigName:     rec.ConfigName,
		Variant:        string(variant),
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}
	columns := []string{"config_name", "variant", "created_at", "last_accessed_at"}
	if rec.Game != nil {
		if model.Game, err = gameJSON(rec.Game); err != nil {
			return err
		}
		columns = append(columns, "game")
	}

	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&model).Error
}

func (p *Postgres) LoadSession(id string) (*session.Record, error) {
	var model SessionModel
	err := p.db.Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rec := &session.Record{
		ID:             model.ID,
		ConfigName:     model.ConfigName,
		CreatedAt:      model.CreatedAt,
		LastAccessedAt: model.LastAccessedAt,
	}
	if err := json.Unmarshal([]byte(model.Variant), &rec.Variant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variant: %w", err)
	}
	if model.Game != nil {
		rec.Game = &engine.SavedGame{}
		if err := json.Unmarshal([]byte(*model.Game), rec.Game); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game: %w", err)
		}
	}
	return rec, nil
}

func (p *Postgres) DeleteSession(id string) error {
	result := p.db.Where("id = ?", id).Delete(&SessionModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (p *Postgres) ListSessions() ([]string, error) {
	var ids []string
	if err := p.db.Model(&SessionModel{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

func (p *Postgres) SessionExists(id string) bool {
	var count int64
	if err := p.db.Model(&SessionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (p *Postgres) SaveGame(id string, game *engine.SavedGame) error {
	data, err := gameJSON(game)
	if err != nil {
		return err
	}
	model := SessionModel{ID: id, Variant: "{}", Game: data}
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"game"}),
	}).Create(&model).Error
}

func (p *Postgres) ClearGame(id string) error {
	return p.db.Model(&SessionModel{}).Where("id = ?", id).Update("game", gorm.Expr("NULL")).Error
}

func (p *Postgres) BestScore() (int, error) {
	var meta MetaModel
	err := p.db.Where("key = ?", bestScoreKey).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read best score: %w", err)
	}
	return meta.Value, nil
}

func (p *Postgres) RaiseBestScore(score int) (int, error) {
	meta := MetaModel{Key: bestScoreKey, Value: score}
	err := p.db.Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("GREATEST(meta.value, EXCLUDED.value)")}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "value"}}},
	).Create(&meta).Error
	if err != nil {
		return 0, fmt.Errorf("failed to write best score: %w", err)
	}
	return meta.Value, nil
}

func gameJSON(game *engine.SavedGame) (*string, error) {
	if game == nil {
		return nil, nil
	}
	data, err := json.Marshal(game)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game: %w", err)
	}
	s := string(data)
	return &s, nil
}
