package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/internal/domain/repository"
	"hephaestus-forge/pkg/errors"
	"hephaestus-forge/pkg/logger"
)

const (
	sessionKeyPrefix  = "forge:session:"
	sessionIndexKey   = "forge:sessions"
	defaultSessionTTL = 7 * 24 * time.Hour
	defaultHistory    = 200
)

// SessionStore 基于 Redis 的会话快照存储
//
// 快照以 JSON 存于 forge:session:<id>，forge:sessions 有序集合按开始时间索引。
type SessionStore struct {
	client  *Client
	ttl     time.Duration
	history int
	group   singleflight.Group
}

var _ repository.SessionRepository = (*SessionStore)(nil)

// NewSessionStore 创建会话快照存储
func NewSessionStore(client *Client) *SessionStore {
	s := &SessionStore{client: client, ttl: defaultSessionTTL, history: defaultHistory}
	if cfg := client.Config(); cfg != nil {
		if cfg.SessionTTL > 0 {
			s.ttl = cfg.SessionTTL
		}
		if cfg.HistoryLimit > 0 {
			s.history = cfg.HistoryLimit
		}
	}
	return s
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Save 写入快照并维护索引，超出保留数量的旧会话被移除
func (s *SessionStore) Save(ctx context.Context, snap *entity.SessionSnapshot) error {
	if snap == nil || snap.ID == "" {
		return errors.ErrInvalidParam.WithDetail("session id is required")
	}
	ctx, span := tracer.Start(ctx, "session.Save",
		trace.WithAttributes(
			attribute.String("session.id", snap.ID),
			attribute.String("session.status", string(snap.Status)),
		))
	defer span.End()

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(snap.ID), data, s.ttl); err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "failed to save session")
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.ZAdd(ctx, sessionIndexKey, redis.Z{
		Score:  float64(snap.StartedAt.UnixMilli()),
		Member: snap.ID,
	})
	// 只保留最新的 history 条
	pipe.ZRemRangeByRank(ctx, sessionIndexKey, 0, int64(-s.history-1))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeCacheError, "failed to index session")
	}
	return nil
}

// GetByID 读取快照；并发读取同一 ID 时合并为一次请求
func (s *SessionStore) GetByID(ctx context.Context, id string) (*entity.SessionSnapshot, error) {
	ctx, span := tracer.Start(ctx, "session.GetByID",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	v, err, shared := s.group.Do(id, func() (interface{}, error) {
		raw, err := s.client.Get(ctx, sessionKey(id))
		if err != nil {
			if IsNil(err) {
				return (*entity.SessionSnapshot)(nil), nil
			}
			return nil, errors.Wrap(err, errors.CodeCacheError, "failed to load session")
		}
		return decodeSnapshot([]byte(raw))
	})
	span.SetAttributes(attribute.Bool("session.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	snap := v.(*entity.SessionSnapshot)
	if snap == nil {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

// ListRecent 按开始时间倒序分页；已过期的索引项顺带清理
func (s *SessionStore) ListRecent(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.SessionSnapshot], error) {
	ctx, span := tracer.Start(ctx, "session.ListRecent",
		trace.WithAttributes(
			attribute.Int("page", pagination.Page),
			attribute.Int("page_size", pagination.PageSize),
		))
	defer span.End()

	start := int64(pagination.Offset())
	stop := start + int64(pagination.Limit()) - 1
	ids, err := s.client.rdb.ZRevRange(ctx, sessionIndexKey, start, stop).Result()
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeCacheError, "failed to list sessions")
	}

	items := make([]*entity.SessionSnapshot, 0, len(ids))
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = sessionKey(id)
		}
		values, err := s.client.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, errors.CodeCacheError, "failed to load sessions")
		}

		var expired []interface{}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				expired = append(expired, ids[i])
				continue
			}
			snap, err := decodeSnapshot([]byte(raw))
			if err != nil {
				logger.Warn(ctx, "skipping undecodable session", "session_id", ids[i], "error", err)
				continue
			}
			items = append(items, snap)
		}
		if len(expired) > 0 {
			if err := s.client.rdb.ZRem(ctx, sessionIndexKey, expired...).Err(); err != nil {
				span.RecordError(err)
			}
		}
	}

	total, err := s.client.rdb.ZCard(ctx, sessionIndexKey).Result()
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeCacheError, "failed to count sessions")
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// SessionStarted 会话开始时写入运行中快照
func (s *SessionStore) SessionStarted(ctx context.Context, snap entity.SessionSnapshot) {
	if err := s.Save(ctx, &snap); err != nil {
		logger.Error(ctx, "failed to persist started session", err, "session_id", snap.ID)
	}
}

// SessionFinished 会话结束时写入终态快照
func (s *SessionStore) SessionFinished(ctx context.Context, snap entity.SessionSnapshot) {
	if err := s.Save(ctx, &snap); err != nil {
		logger.Error(ctx, "failed to persist finished session", err, "session_id", snap.ID)
	}
}

func decodeSnapshot(data []byte) (*entity.SessionSnapshot, error) {
	var snap entity.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if snap.OutputFiles == nil {
		snap.OutputFiles = []string{}
	}
	return &snap, nil
}
