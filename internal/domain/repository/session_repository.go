package repository

import (
	"context"

	"hephaestus-forge/internal/domain/entity"
)

// SessionRepository 会话快照仓储接口
type SessionRepository interface {
	// Save 保存快照，同一 ID 覆盖写入
	Save(ctx context.Context, snap *entity.SessionSnapshot) error

	// GetByID 根据 ID 获取快照，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.SessionSnapshot, error)

	// ListRecent 按开始时间倒序列出最近的会话
	ListRecent(ctx context.Context, pagination Pagination) (*PagedResult[*entity.SessionSnapshot], error)
}
