// Package bridge runs storage tasks on a bounded worker pool so write-path
// callers can fire and forget while read-path callers wait synchronously.
// Tasks entering the bridge from inside one of its own workers run inline,
// which keeps nested persistence calls from deadlocking a saturated pool.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrBridgeClosed    = errors.New("bridge is closed")
	ErrBridgeSaturated = errors.New("bridge queue is full")
)

// Task 一个存储单元任务。
type Task func(ctx context.Context) error

type ctxKey struct{}

// inBridge reports whether ctx originated inside a bridge worker.
func inBridge(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// Config configures the bridge pool.
type Config struct {
	MaxWorkers int           `json:"max_workers"`
	QueueSize  int           `json:"queue_size"`
	IdleTime   time.Duration `json:"idle_time"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 8,
		QueueSize:  256,
		IdleTime:   60 * time.Second,
	}
}

// Bridge 有界工作池。所有记忆存储调用都经过它,
// 避免每次写入各自起 goroutine。
type Bridge struct {
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup
	idleTime    time.Duration
	logger      *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a bridge with the given config. Zero values fall back to
// DefaultConfig.
func New(cfg Config, logger *zap.Logger) *Bridge {
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.IdleTime <= 0 {
		cfg.IdleTime = def.IdleTime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		maxWorkers: cfg.MaxWorkers,
		taskQueue:  make(chan taskWrapper, cfg.QueueSize),
		idleTime:   cfg.IdleTime,
		logger:     logger.With(zap.String("component", "bridge")),
	}
}

// Run 同步执行:提交任务并等待结果。
// 已在桥内的调用直接内联执行,防止池饱和时自我死锁。
func (b *Bridge) Run(ctx context.Context, task Task) error {
	if inBridge(ctx) {
		return task(ctx)
	}
	if b.closed.Load() {
		return ErrBridgeClosed
	}

	b.submitted.Add(1)
	wrapper := taskWrapper{
		task:   task,
		ctx:    context.WithValue(ctx, ctxKey{}, true),
		result: make(chan error, 1),
	}

	select {
	case b.taskQueue <- wrapper:
		b.ensureWorker()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-wrapper.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAsync 异步执行:提交后立即返回,失败只记日志。
// 队列满时降级为内联执行,写入不丢。
func (b *Bridge) RunAsync(ctx context.Context, task Task) {
	if inBridge(ctx) {
		if err := task(ctx); err != nil {
			b.logger.Warn("inline task failed", zap.Error(err))
		}
		return
	}
	if b.closed.Load() {
		b.logger.Warn("task dropped, bridge closed")
		return
	}

	b.submitted.Add(1)
	wrapper := taskWrapper{
		task: task,
		ctx:  context.WithValue(ctx, ctxKey{}, true),
	}

	select {
	case b.taskQueue <- wrapper:
		b.ensureWorker()
	default:
		if err := task(ctx); err != nil {
			b.failed.Add(1)
			b.logger.Warn("overflow task failed", zap.Error(err))
		} else {
			b.completed.Add(1)
		}
	}
}

func (b *Bridge) ensureWorker() {
	for {
		current := b.workerCount.Load()
		if current >= int32(b.maxWorkers) {
			return
		}
		if b.workerCount.CompareAndSwap(current, current+1) {
			b.wg.Add(1)
			go b.worker()
			return
		}
	}
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	defer b.workerCount.Add(-1)

	timer := time.NewTimer(b.idleTime)
	defer timer.Stop()

	for {
		select {
		case wrapper, ok := <-b.taskQueue:
			if !ok {
				return
			}

			err := b.execute(wrapper)
			if err != nil {
				b.failed.Add(1)
			} else {
				b.completed.Add(1)
			}

			if wrapper.result != nil {
				wrapper.result <- err
				close(wrapper.result)
			} else if err != nil {
				b.logger.Warn("async task failed", zap.Error(err))
			}
			timer.Reset(b.idleTime)

		case <-timer.C:
			if b.workerCount.Load() > 1 {
				return
			}
			timer.Reset(b.idleTime)
		}
	}
}

func (b *Bridge) execute(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("task panicked", zap.Any("panic", r))
			err = errors.New("task panicked")
		}
	}()
	return wrapper.task(wrapper.ctx)
}

// Wait 等待当前排队任务清空。用于测试与优雅关闭前的排水。
func (b *Bridge) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(b.taskQueue) == 0 && b.submitted.Load() == b.completed.Load()+b.failed.Load() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Close closes the bridge and waits for in-flight tasks.
func (b *Bridge) Close() {
	if b.closed.Swap(true) {
		return
	}
	close(b.taskQueue)
	b.wg.Wait()
}

// Stats returns pool statistics.
func (b *Bridge) Stats() Stats {
	return Stats{
		Workers:   int(b.workerCount.Load()),
		Queued:    len(b.taskQueue),
		Submitted: b.submitted.Load(),
		Completed: b.completed.Load(),
		Failed:    b.failed.Load(),
	}
}

// Stats contains bridge pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
