package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/crewmem/types"
)

// LongTermRow 长期记忆关系表。Default 后端的长期记忆走关系存储：
// 任务质量历史按文本匹配检索，不需要向量索引。
type LongTermRow struct {
	ID              uint   `gorm:"primaryKey"`
	RecordID        string `gorm:"uniqueIndex;size:64"`
	CrewID          string `gorm:"index;size:128"`
	AgentID         string `gorm:"size:128"`
	TaskDescription string `gorm:"type:text"`
	Quality         float64
	Importance      float64
	Metadata        string `gorm:"type:text"`
	CreatedAt       time.Time
}

// TableName 显式表名。
func (LongTermRow) TableName() string { return "long_term_memories" }

// SQLiteStore is the relational half of the Default backend. It implements
// Client for the long-term kind: saves are rows, searches are
// task-description substring matches ranked by quality then recency.
type SQLiteStore struct {
	db     *gorm.DB
	crewID string
	logger *zap.Logger
}

// NewSQLiteStore 创建长期记忆关系存储并自动迁移表结构。
func NewSQLiteStore(db *gorm.DB, crewID string, logger *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&LongTermRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &SQLiteStore{
		db:     db,
		crewID: crewID,
		logger: logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

// Save 持久化一条长期记忆。
func (s *SQLiteStore) Save(ctx context.Context, rec *types.MemoryRecord) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if rec.Kind != types.MemoryLongTerm {
		return fmt.Errorf("sqlite store only accepts long-term records, got %s", rec.Kind)
	}

	meta, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	row := LongTermRow{
		RecordID:        rec.ID,
		CrewID:          rec.CrewID,
		AgentID:         rec.AgentID,
		TaskDescription: rec.TaskDescription,
		Quality:         rec.Quality,
		Importance:      rec.Importance,
		Metadata:        string(meta),
		CreatedAt:       rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert long-term row: %w", err)
	}
	return nil
}

// Search 按任务描述子串匹配检索，质量优先、时间次之。
// 查询中的 Filters["task"] 为匹配文本；为空时列出最近记录。
func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]types.SearchResult, error) {
	k := q.K
	if k <= 0 {
		k = 10
	}

	tx := s.db.WithContext(ctx).
		Model(&LongTermRow{}).
		Where("crew_id = ?", s.crewID)

	if task := q.Filters["task"]; task != "" {
		tx = tx.Where("task_description LIKE ?", "%"+task+"%")
	}

	var rows []LongTermRow
	if err := tx.Order("quality DESC, created_at DESC").Limit(k).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query long-term rows: %w", err)
	}

	out := make([]types.SearchResult, 0, len(rows))
	for _, row := range rows {
		var rec types.MemoryRecord
		if err := json.Unmarshal([]byte(row.Metadata), &rec); err != nil {
			s.logger.Warn("skipping undecodable long-term row",
				zap.String("record_id", row.RecordID), zap.Error(err))
			continue
		}
		out = append(out, types.SearchResult{
			Record:  rec,
			Score:   normalizeQuality(row.Quality),
			Context: rec.TaskDescription,
		})
	}
	return out, nil
}

// normalizeQuality 将 0-10 的质量分映射到 0-1 的检索得分。
func normalizeQuality(q float64) float64 {
	score := q / 10
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
