// Package sampler periodically samples host and process metrics into the
// metric store under the "system" category.
package sampler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/vigilhq/vigil/internal/logger"
	"github.com/vigilhq/vigil/internal/metrics"
)

// DefaultInterval is how often the sampler collects.
const DefaultInterval = 10 * time.Second

const category = "system"

// Recorder is the slice of the metric store the sampler writes to.
type Recorder interface {
	RecordIn(category, name string, value float64)
}

// Sampler collects host metrics on an interval and records them into the
// metric store.
type Sampler struct {
	recorder Recorder
	interval time.Duration
	diskPath string
	perCore  bool

	proc *process.Process

	prevNet     *net.IOCountersStat
	prevNetTime time.Time
	sentRate    ewma.MovingAverage
	recvRate    ewma.MovingAverage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDiskPath sets the filesystem path whose usage is sampled.
func WithDiskPath(path string) Option {
	return func(s *Sampler) {
		if path != "" {
			s.diskPath = path
		}
	}
}

// WithPerCore enables per-core CPU usage series.
func WithPerCore(enabled bool) Option {
	return func(s *Sampler) {
		s.perCore = enabled
	}
}

// New creates a sampler writing into recorder.
func New(recorder Recorder, opts ...Option) *Sampler {
	s := &Sampler{
		recorder: recorder,
		interval: DefaultInterval,
		diskPath: "/",
		sentRate: ewma.NewMovingAverage(),
		recvRate: ewma.NewMovingAverage(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	}

	return s
}

// Start launches the sampling loop. Idempotent.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()
	logger.Info("system sampler started", "interval", s.interval.String())
}

// Stop halts sampling and waits for the in-flight collection. Idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	s.cancel()
	s.wg.Wait()
	logger.Info("system sampler stopped")
}

func (s *Sampler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Prime the first sample immediately instead of waiting a full interval.
	s.collect(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.collect(s.ctx)
		}
	}
}

// Collect runs one sampling pass. Exposed for on-demand collection; each
// subsystem failure is logged and skipped rather than aborting the pass.
func (s *Sampler) Collect(ctx context.Context) {
	s.collect(ctx)
}

func (s *Sampler) collect(ctx context.Context) {
	s.collectCPU(ctx)
	s.collectLoad(ctx)
	s.collectMemory(ctx)
	s.collectDisk(ctx)
	s.collectNetwork(ctx)
	s.collectProcess()
}

func (s *Sampler) collectCPU(ctx context.Context) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		logger.Debug("cpu sample failed", "error", errString(err))
		return
	}
	s.recorder.RecordIn(category, "cpu_percent", percents[0])

	if !s.perCore {
		return
	}
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return
	}
	for i, pct := range perCore {
		s.recorder.RecordIn(category, fmt.Sprintf("cpu_percent_core_%d", i), pct)
	}
}

func (s *Sampler) collectLoad(ctx context.Context) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		logger.Debug("load sample failed", "error", err.Error())
		return
	}
	s.recorder.RecordIn(category, "load_1", avg.Load1)
	s.recorder.RecordIn(category, "load_5", avg.Load5)
	s.recorder.RecordIn(category, "load_15", avg.Load15)
}

func (s *Sampler) collectMemory(ctx context.Context) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		logger.Debug("memory sample failed", "error", err.Error())
		return
	}
	s.recorder.RecordIn(category, "memory_percent", vm.UsedPercent)
	s.recorder.RecordIn(category, "memory_used_mb", float64(vm.Used)/(1024*1024))
	s.recorder.RecordIn(category, "memory_available_mb", float64(vm.Available)/(1024*1024))

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err == nil && swap.Total > 0 {
		s.recorder.RecordIn(category, "swap_percent", swap.UsedPercent)
	}
}

func (s *Sampler) collectDisk(ctx context.Context) {
	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		logger.Debug("disk sample failed", "path", s.diskPath, "error", err.Error())
		return
	}
	s.recorder.RecordIn(category, "disk_root_percent", usage.UsedPercent)
	s.recorder.RecordIn(category, "disk_root_free_gb", float64(usage.Free)/(1024*1024*1024))
}

// collectNetwork records system-wide byte rates, smoothed with an
// exponentially weighted moving average so a single burst doesn't whipsaw
// threshold rules.
func (s *Sampler) collectNetwork(ctx context.Context) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		logger.Debug("network sample failed", "error", errString(err))
		return
	}
	cur := counters[0]
	now := time.Now()

	if s.prevNet != nil {
		elapsed := now.Sub(s.prevNetTime).Seconds()
		if elapsed > 0 {
			s.sentRate.Add(float64(cur.BytesSent-s.prevNet.BytesSent) / elapsed)
			s.recvRate.Add(float64(cur.BytesRecv-s.prevNet.BytesRecv) / elapsed)
			s.recorder.RecordIn(category, "net_sent_bytes_per_sec", s.sentRate.Value())
			s.recorder.RecordIn(category, "net_recv_bytes_per_sec", s.recvRate.Value())
		}
	}
	s.prevNet = &cur
	s.prevNetTime = now
}

func (s *Sampler) collectProcess() {
	if s.proc == nil {
		return
	}
	if pct, err := s.proc.CPUPercent(); err == nil {
		s.recorder.RecordIn(category, "proc_cpu_percent", pct)
	}
	if mi, err := s.proc.MemoryInfo(); err == nil {
		s.recorder.RecordIn(category, "proc_memory_mb", float64(mi.RSS)/(1024*1024))
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		s.recorder.RecordIn(category, "proc_num_threads", float64(threads))
	}
}

func errString(err error) string {
	if err == nil {
		return "empty result"
	}
	return err.Error()
}

var _ Recorder = (*metrics.Store)(nil)
