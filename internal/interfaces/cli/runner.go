package cli

import (
	"context"
	"fmt"
	"io"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/pkg/errors"
)

// Printer 将会话事件写到终端：日志原样输出到 out，步骤与进度输出到 status
type Printer struct {
	out    io.Writer
	status io.Writer
	step   string
}

// NewPrinter 创建事件输出器
func NewPrinter(out, status io.Writer) *Printer {
	return &Printer{out: out, status: status}
}

// Handle 输出单个事件
func (p *Printer) Handle(ev forge.Event) {
	switch ev.Type {
	case forge.EventSnapshot:
		if ev.Snapshot != nil {
			fmt.Fprint(p.out, ev.Snapshot.Transcript)
		}
	case forge.EventLog:
		fmt.Fprint(p.out, ev.Text)
	case forge.EventState:
		if ev.Step != p.step {
			p.step = ev.Step
			fmt.Fprintf(p.status, "[%3.0f%%] %s\n", ev.Progress*100, ev.Step)
		}
	case forge.EventFile:
		fmt.Fprintf(p.status, "  -> %s\n", ev.File)
	}
}

// Summary 输出终态摘要
func (p *Printer) Summary(snap entity.SessionSnapshot) {
	switch snap.Status {
	case entity.SessionStatusCompleted:
		code := 0
		if snap.ExitCode != nil {
			code = *snap.ExitCode
		}
		fmt.Fprintf(p.status, "[100%%] %s (exit code %d)\n", entity.StepComplete, code)
	case entity.SessionStatusFailed:
		fmt.Fprintf(p.status, "generation failed: %s\n", snap.Error)
	}
	if len(snap.OutputFiles) == 0 {
		return
	}
	fmt.Fprintln(p.status, "Output files:")
	for _, f := range snap.OutputFiles {
		fmt.Fprintf(p.status, "  %s\n", f)
	}
}

// Run 提交一次生成并实时输出，直到会话结束
//
// 先订阅再提交，保证不丢失开头的日志。
func Run(ctx context.Context, gen forge.Generator, req entity.GenerationRequest, printer *Printer) (entity.SessionSnapshot, error) {
	events, unsubscribe, err := gen.Subscribe(ctx)
	if err != nil {
		return entity.SessionSnapshot{}, err
	}
	defer unsubscribe()

	snap, err := gen.Submit(ctx, req)
	if err != nil {
		return snap, err
	}
	if !snap.InFlight {
		printer.Handle(forge.Event{Type: forge.EventSnapshot, SessionID: snap.ID, Snapshot: &snap})
		printer.Summary(snap)
		return snap, nil
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// 订阅被移除时不再输出日志，仅等待终态
				snap, err = gen.Wait(ctx, snap.ID)
				if err == nil {
					printer.Summary(snap)
				}
				return snap, err
			}
			if ev.SessionID != snap.ID {
				continue
			}
			if ev.Type == forge.EventDone {
				final := snap
				if ev.Snapshot != nil {
					final = *ev.Snapshot
				}
				printer.Summary(final)
				return final, nil
			}
			printer.Handle(ev)
		case <-ctx.Done():
			// 中断时终止子进程并等待终态
			bg := context.WithoutCancel(ctx)
			if _, err := gen.Cancel(bg); err != nil && !errors.Is(err, errors.ErrNoActiveGeneration) {
				return snap, err
			}
			if final, err := gen.Wait(bg, snap.ID); err == nil {
				printer.Summary(final)
				snap = final
			}
			return snap, ctx.Err()
		}
	}
}
