package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ConfigRow 租户记忆配置表。
type ConfigRow struct {
	ID        uint   `gorm:"primaryKey"`
	GroupID   string `gorm:"index:idx_group_active;size:128"`
	Active    bool   `gorm:"index:idx_group_active"`
	Config    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 显式表名。
func (ConfigRow) TableName() string { return "crew_memory_configs" }

// GormConfigStore 基于 GORM 的租户配置存储实现。
type GormConfigStore struct {
	db *gorm.DB
}

// NewGormConfigStore 创建配置存储并自动迁移表结构。
func NewGormConfigStore(db *gorm.DB) (*GormConfigStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.AutoMigrate(&ConfigRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormConfigStore{db: db}, nil
}

// GetActiveConfig 返回租户当前生效的配置，无记录时返回 (nil, nil)。
func (s *GormConfigStore) GetActiveConfig(ctx context.Context, groupID string) (*Config, error) {
	var row ConfigRow
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND active = ?", groupID, true).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query active config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
		return nil, fmt.Errorf("decode config for group %s: %w", groupID, err)
	}
	return &cfg, nil
}

// SetActiveConfig 写入新配置并将旧配置标记为非活跃。
func (s *GormConfigStore) SetActiveConfig(ctx context.Context, groupID string, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ConfigRow{}).
			Where("group_id = ? AND active = ?", groupID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&ConfigRow{
			GroupID: groupID,
			Active:  true,
			Config:  string(data),
		}).Error
	})
}
