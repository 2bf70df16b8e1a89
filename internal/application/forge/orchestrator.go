package forge

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/pkg/errors"
	"hephaestus-forge/pkg/logger"
	"hephaestus-forge/pkg/metrics"
	"hephaestus-forge/pkg/tracer"
)

const (
	recentLimit  = 32
	notifyBuffer = 128
)

var (
	// ErrStopped 编排器已停止
	ErrStopped = errors.ErrServiceUnavailable.WithDetail("orchestrator stopped")

	errCancelled = stderrors.New("generation cancelled")
)

// Orchestrator 生成会话的唯一所有者
//
// 所有会话状态只在 Run 的事件循环中读写；其他 goroutine 通过 inbox 投递闭包。
type Orchestrator struct {
	opts      Options
	launcher  Launcher
	parser    *Parser
	rules     []ScanRule
	observers []SessionObserver
	newID     func() string

	inbox   chan func()
	done    chan struct{}
	running atomic.Bool

	// 以下字段仅由事件循环访问
	baseCtx   context.Context
	session   *entity.GenerationSession
	runSeq    uint64
	runCtx    context.Context
	cancelRun context.CancelFunc
	span      trace.Span
	subs      map[uint64]chan Event
	nextSub   uint64
	waiters   map[string][]chan entity.SessionSnapshot
	recent    map[string]entity.SessionSnapshot
	recentIDs []string
	notify    chan func(context.Context)
}

// NewOrchestrator 创建编排器；需调用 Run 后才能处理请求
func NewOrchestrator(opts Options, launcher Launcher, observers ...SessionObserver) *Orchestrator {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 4096
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 256
	}
	return &Orchestrator{
		opts:      opts,
		launcher:  launcher,
		parser:    NewParser(opts.Markers),
		rules:     DefaultScanRules,
		observers: observers,
		newID:     uuid.NewString,
		inbox:     make(chan func()),
		done:      make(chan struct{}),
		subs:      make(map[uint64]chan Event),
		waiters:   make(map[string][]chan entity.SessionSnapshot),
		recent:    make(map[string]entity.SessionSnapshot),
		notify:    make(chan func(context.Context), notifyBuffer),
	}
}

// Options 返回运行参数
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Run 运行事件循环，直到 ctx 取消
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator already running")
	}
	o.baseCtx = ctx

	notifyDone := make(chan struct{})
	go o.notifyLoop(context.WithoutCancel(ctx), notifyDone)

	logger.Info(ctx, "orchestrator started",
		"root", o.opts.ProjectRoot,
		"script", o.opts.Script,
		"results", o.opts.ResultsRoot,
	)

	for {
		select {
		case fn := <-o.inbox:
			fn()
		case <-ctx.Done():
			o.shutdown()
			<-notifyDone
			logger.Info(context.WithoutCancel(ctx), "orchestrator stopped")
			return nil
		}
	}
}

// Done 事件循环退出后关闭
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Submit 校验参数并启动一次生成；已有生成在运行时拒绝
func (o *Orchestrator) Submit(ctx context.Context, req entity.GenerationRequest) (entity.SessionSnapshot, error) {
	if err := req.Validate(); err != nil {
		metrics.GenerationRejected.WithLabelValues("invalid").Inc()
		return entity.SessionSnapshot{}, err
	}

	var (
		snap entity.SessionSnapshot
		err  error
	)
	if callErr := o.call(ctx, func() { snap, err = o.start(ctx, req) }); callErr != nil {
		return entity.SessionSnapshot{}, callErr
	}
	return snap, err
}

// Snapshot 返回当前会话视图；从未提交时为 idle
func (o *Orchestrator) Snapshot(ctx context.Context) (entity.SessionSnapshot, error) {
	var snap entity.SessionSnapshot
	if err := o.call(ctx, func() { snap = o.session.Snapshot() }); err != nil {
		return entity.SessionSnapshot{}, err
	}
	return snap, nil
}

// Cancel 终止正在运行的生成；会话在子进程退出后进入 failed
func (o *Orchestrator) Cancel(ctx context.Context) (entity.SessionSnapshot, error) {
	var (
		snap entity.SessionSnapshot
		err  error
	)
	callErr := o.call(ctx, func() {
		if !o.session.InFlight() {
			err = errors.ErrNoActiveGeneration
			return
		}
		logger.Info(o.sessionCtx(), "cancelling generation")
		o.cancelRun()
		snap = o.session.Snapshot()
	})
	if callErr != nil {
		return entity.SessionSnapshot{}, callErr
	}
	return snap, err
}

// Wait 阻塞直到指定会话进入终态
func (o *Orchestrator) Wait(ctx context.Context, id string) (entity.SessionSnapshot, error) {
	var (
		snap  entity.SessionSnapshot
		ready bool
		ch    chan entity.SessionSnapshot
		err   error
	)
	callErr := o.call(ctx, func() {
		if s := o.session; s != nil && s.ID == id {
			if !s.InFlight() {
				snap, ready = s.Snapshot(), true
				return
			}
			ch = make(chan entity.SessionSnapshot, 1)
			o.waiters[id] = append(o.waiters[id], ch)
			return
		}
		if r, ok := o.recent[id]; ok {
			snap, ready = r, true
			return
		}
		err = errors.ErrSessionNotFound
	})
	if callErr != nil {
		return entity.SessionSnapshot{}, callErr
	}
	if err != nil || ready {
		return snap, err
	}

	select {
	case snap = <-ch:
		return snap, nil
	case <-ctx.Done():
		return entity.SessionSnapshot{}, ctx.Err()
	case <-o.done:
		return entity.SessionSnapshot{}, ErrStopped
	}
}

// Subscribe 订阅会话事件；首个事件为当前快照
//
// 消费过慢的订阅者会被移除并关闭通道，重新订阅即可拿到最新快照。
func (o *Orchestrator) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	var (
		id uint64
		ch chan Event
	)
	err := o.call(ctx, func() {
		o.nextSub++
		id = o.nextSub
		ch = make(chan Event, o.opts.SubscriberBuffer)
		ch <- snapshotEvent(EventSnapshot, o.session.Snapshot())
		o.subs[id] = ch
		metrics.StreamSubscribers.Set(float64(len(o.subs)))
	})
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			o.post(func() { o.dropSubscriber(id) })
		})
	}
	return ch, unsubscribe, nil
}

func (o *Orchestrator) start(ctx context.Context, req entity.GenerationRequest) (entity.SessionSnapshot, error) {
	if o.session.InFlight() {
		metrics.GenerationRejected.WithLabelValues("in_flight").Inc()
		logger.Warn(ctx, "generation rejected: already running", "session_id", o.session.ID)
		return o.session.Snapshot(), errors.ErrGenerationInFlight
	}

	id := o.newID()
	s := entity.NewGenerationSession(id, req, Command(req, o.opts))
	o.session = s
	o.runSeq++
	seq := o.runSeq

	runCtx, cancel := context.WithCancel(o.baseCtx)
	if o.opts.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, o.opts.RunTimeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}
	runCtx = logger.WithContext(runCtx, logger.SessionIDKey, id)
	runCtx, o.span = tracer.Start(runCtx, "forge.generation", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("generation.sampler", string(req.Sampler)),
		attribute.Int("generation.steps", req.Steps),
		attribute.Bool("generation.refine", req.Refine),
	))
	o.runCtx = runCtx
	o.cancelRun = cancel

	metrics.GenerationInFlight.Set(1)
	metrics.GenerationProgress.Set(0)
	logger.Info(runCtx, "generation started", "command", s.Command)

	started := s.Snapshot()
	o.broadcast(snapshotEvent(EventSnapshot, started))
	o.notifyObservers(func(ctx context.Context, obs SessionObserver) { obs.SessionStarted(ctx, started) })

	proc, err := o.launcher.Launch(runCtx, Invocation{
		Dir:            o.opts.ProjectRoot,
		Argv:           BuildArgs(req, o.opts),
		Env:            o.opts.Env,
		ActivateScript: o.opts.ActivateScript,
		Shell:          o.opts.Shell,
	})
	if err != nil {
		s.Fail(errors.ErrLaunchFailed.WithError(err))
		o.finish()
		return s.Snapshot(), nil
	}

	go o.pump(seq, proc)
	return s.Snapshot(), nil
}

// pump 读取子进程输出并投递给事件循环；循环停止后仍排空输出以回收子进程
func (o *Orchestrator) pump(seq uint64, proc Process) {
	out := proc.Output()
	buf := make([]byte, o.opts.ReadBufferSize)
	delivering := true
	for {
		n, err := out.Read(buf)
		if n > 0 && delivering {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			delivering = o.post(func() { o.applyChunk(seq, chunk) })
		}
		if err != nil {
			if err != io.EOF && delivering {
				logger.Warn(context.Background(), "read generator output failed", "error", err)
			}
			break
		}
	}

	code, err := proc.Wait()
	o.post(func() { o.exit(seq, code, err) })
}

func (o *Orchestrator) applyChunk(seq uint64, chunk []byte) {
	s := o.session
	if seq != o.runSeq || !s.InFlight() {
		return
	}

	res := o.parser.Apply(s, chunk)
	if !res.Decoded {
		metrics.OutputChunksTotal.WithLabelValues("dropped").Inc()
		logger.Debug(o.runCtx, "dropped undecodable output chunk", "bytes", len(chunk))
		return
	}
	metrics.OutputChunksTotal.WithLabelValues("decoded").Inc()

	o.broadcast(Event{Type: EventLog, SessionID: s.ID, Text: res.Text, Progress: s.Progress})

	if res.Marker != MarkerNone {
		metrics.OutputMarkersTotal.WithLabelValues(string(res.Marker)).Inc()
	}
	if res.StepChanged || res.ProgressChanged {
		metrics.GenerationProgress.Set(s.Progress)
		o.broadcast(stateEvent(s))
	}
	if res.File != "" {
		metrics.OutputFilesTotal.WithLabelValues("log").Inc()
		o.broadcast(Event{Type: EventFile, SessionID: s.ID, File: res.File, Progress: s.Progress})
	}
}

func (o *Orchestrator) exit(seq uint64, code int, waitErr error) {
	s := o.session
	if seq != o.runSeq || !s.InFlight() {
		return
	}

	switch ctxErr := o.runCtx.Err(); {
	case stderrors.Is(ctxErr, context.DeadlineExceeded):
		s.Fail(fmt.Errorf("generation timed out after %s", o.opts.RunTimeout))
	case ctxErr != nil:
		s.Fail(errCancelled)
	case waitErr != nil:
		s.Fail(waitErr)
	default:
		s.Complete(code)
		for _, f := range ScanOutputs(o.opts.ResultsRoot, o.rules) {
			s.AddOutputFile(f.Path)
			metrics.OutputFilesTotal.WithLabelValues(f.Source).Inc()
			o.broadcast(Event{Type: EventFile, SessionID: s.ID, File: f.Path, Progress: s.Progress})
		}
	}
	o.finish()
}

// finish 会话进入终态后的收尾
func (o *Orchestrator) finish() {
	s := o.session
	ctx := o.runCtx
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}

	snap := s.Snapshot()
	status := string(snap.Status)
	metrics.GenerationInFlight.Set(0)
	metrics.GenerationProgress.Set(snap.Progress)
	metrics.GenerationTotal.WithLabelValues(string(snap.Request.Sampler), status).Inc()
	metrics.GenerationDuration.WithLabelValues(
		string(snap.Request.Sampler),
		strconv.FormatBool(snap.Request.Refine),
	).Observe(s.Duration().Seconds())

	if o.span != nil {
		o.span.SetAttributes(attribute.String("generation.status", status))
		if snap.ExitCode != nil {
			o.span.SetAttributes(attribute.Int("generation.exit_code", *snap.ExitCode))
		}
		if snap.Status == entity.SessionStatusFailed {
			tracer.RecordError(o.span, stderrors.New(snap.Error))
		}
		o.span.End()
		o.span = nil
	}

	if snap.Status == entity.SessionStatusFailed {
		logger.Warn(ctx, "generation failed", "error", snap.Error, "duration", s.Duration())
	} else {
		logger.Info(ctx, "generation completed",
			"exit_code", *snap.ExitCode,
			"files", len(snap.OutputFiles),
			"duration", s.Duration(),
		)
	}

	o.remember(snap)
	o.broadcast(snapshotEvent(EventDone, snap))
	for _, ch := range o.waiters[snap.ID] {
		ch <- snap
	}
	delete(o.waiters, snap.ID)
	o.notifyObservers(func(ctx context.Context, obs SessionObserver) { obs.SessionFinished(ctx, snap) })
}

func (o *Orchestrator) remember(snap entity.SessionSnapshot) {
	if _, ok := o.recent[snap.ID]; !ok {
		o.recentIDs = append(o.recentIDs, snap.ID)
	}
	o.recent[snap.ID] = snap
	for len(o.recentIDs) > recentLimit {
		delete(o.recent, o.recentIDs[0])
		o.recentIDs = o.recentIDs[1:]
	}
}

func (o *Orchestrator) broadcast(ev Event) {
	for id, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn(o.baseCtx, "dropping slow subscriber", "subscriber", id)
			o.dropSubscriber(id)
		}
	}
}

func (o *Orchestrator) dropSubscriber(id uint64) {
	if ch, ok := o.subs[id]; ok {
		delete(o.subs, id)
		close(ch)
		metrics.StreamSubscribers.Set(float64(len(o.subs)))
	}
}

func (o *Orchestrator) notifyObservers(fn func(context.Context, SessionObserver)) {
	if len(o.observers) == 0 {
		return
	}
	job := func(ctx context.Context) {
		for _, obs := range o.observers {
			fn(ctx, obs)
		}
	}
	select {
	case o.notify <- job:
	default:
		logger.Warn(o.baseCtx, "observer queue full, notification dropped")
	}
}

func (o *Orchestrator) notifyLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for job := range o.notify {
		job(ctx)
	}
}

func (o *Orchestrator) shutdown() {
	if o.session.InFlight() && o.cancelRun != nil {
		logger.Warn(o.sessionCtx(), "shutting down with generation in flight")
		o.cancelRun()
	}
	close(o.done)
	for id := range o.subs {
		o.dropSubscriber(id)
	}
	close(o.notify)
}

func (o *Orchestrator) sessionCtx() context.Context {
	if o.runCtx != nil {
		return o.runCtx
	}
	return o.baseCtx
}

// call 在事件循环中同步执行 fn
func (o *Orchestrator) call(ctx context.Context, fn func()) error {
	executed := make(chan struct{})
	select {
	case o.inbox <- func() { fn(); close(executed) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
	<-executed
	return nil
}

// post 异步投递；循环已停止时返回 false
func (o *Orchestrator) post(fn func()) bool {
	select {
	case o.inbox <- fn:
		return true
	case <-o.done:
		return false
	}
}
