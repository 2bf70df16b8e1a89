package forge

import (
	"context"

	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/pkg/errors"
	"hephaestus-forge/pkg/logger"
)

// Generator 编排器对外暴露的操作
type Generator interface {
	Submit(ctx context.Context, req entity.GenerationRequest) (entity.SessionSnapshot, error)
	Snapshot(ctx context.Context) (entity.SessionSnapshot, error)
	Cancel(ctx context.Context) (entity.SessionSnapshot, error)
	Wait(ctx context.Context, id string) (entity.SessionSnapshot, error)
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

var _ Generator = (*Orchestrator)(nil)

// RunToCompletion 提交并等待终态；已有生成在运行时先等它结束再提交
//
// 队列任务通过它串行执行，不会与直接提交的生成并发。
func RunToCompletion(ctx context.Context, gen Generator, req entity.GenerationRequest) (entity.SessionSnapshot, error) {
	for {
		snap, err := gen.Submit(ctx, req)
		if errors.Is(err, errors.ErrGenerationInFlight) {
			logger.Info(ctx, "waiting for running generation", "session_id", snap.ID)
			if _, err := gen.Wait(ctx, snap.ID); err != nil && !errors.Is(err, errors.ErrSessionNotFound) {
				return entity.SessionSnapshot{}, err
			}
			continue
		}
		if err != nil {
			return entity.SessionSnapshot{}, err
		}
		if !snap.InFlight {
			return snap, nil
		}
		return gen.Wait(ctx, snap.ID)
	}
}
