package main

import (
	"context"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/infrastructure/messaging"
	"hephaestus-forge/pkg/errors"
	"hephaestus-forge/pkg/logger"
)

// handleGenerationJob 执行队列中的生成任务
//
// 参数不合法的任务直接确认，不进入重试；生成以 Failed 结束同样视为处理完成。
// 只有编排器不可用或等待被中断时返回错误，由消费者按退避重试。
func handleGenerationJob(gen forge.Generator) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var job messaging.GenerationJobMessage
		if err := msg.UnmarshalPayload(&job); err != nil {
			logger.Error(ctx, "invalid generation job payload", err, "message_id", msg.ID)
			return nil
		}
		if job.RequestID != "" {
			ctx = logger.WithContext(ctx, logger.RequestIDKey, job.RequestID)
		}
		if err := job.Request.Validate(); err != nil {
			logger.Error(ctx, "rejected generation job", err, "job_id", job.JobID)
			return nil
		}

		logger.Info(ctx, "generation job started", "job_id", job.JobID)
		snap, err := forge.RunToCompletion(ctx, gen, job.Request)
		if err != nil {
			if errors.Is(err, errors.ErrInvalidParam) {
				logger.Error(ctx, "rejected generation job", err, "job_id", job.JobID)
				return nil
			}
			return err
		}

		logger.Info(ctx, "generation job finished",
			"job_id", job.JobID,
			"session_id", snap.ID,
			"status", snap.Status,
			"output_files", len(snap.OutputFiles),
		)
		return nil
	}
}
