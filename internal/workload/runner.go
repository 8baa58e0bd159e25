package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/pkg/buffer"
	"github.com/jittakal/membuffers/pkg/membuffers"
	"github.com/jittakal/membuffers/pkg/record"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// MetricsCollector defines metrics operations for the workload.
type MetricsCollector interface {
	IncEventsProduced(buffer string, producer int)
	IncBackpressureWaits(buffer string)
	IncEventsDrained(buffer string, status string)
	ObserveStagingLatency(buffer string, seconds float64)
}

// Sink receives drained records. storage.Sink implements it.
type Sink interface {
	Add(ctx context.Context, rec record.Record) error
	FlushDue(ctx context.Context) error
	Flush(ctx context.Context) error
}

// AllocatorStatsSource reports allocator counters. membuffers.Factory
// implements it.
type AllocatorStatsSource interface {
	Stats() membuffers.AllocatorStats
}

// Config contains runner settings.
type Config struct {
	Producers int
	Consumers int
	// EventsPerProducer stops each producer after that many events; zero
	// means run until the context ends or Duration elapses.
	EventsPerProducer int
	// RatePerSecond is shared by all producers; zero means unlimited.
	RatePerSecond int
	Burst         int
	Duration      time.Duration
	ReadTimeout   time.Duration
	Backpressure  time.Duration
	FlushInterval time.Duration
	// DrainTimeout bounds how long consumers keep draining after producers
	// stop; zero means until every buffer is empty.
	DrainTimeout time.Duration
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID      string
	Produced   int64
	Dropped    int64
	Drained    int64
	Invalid    int64
	SinkErrors int64
	Elapsed    time.Duration
}

// Runner stages generated events through buffers.
type Runner struct {
	config    Config
	generator GeneratorConfig
	allocator AllocatorStatsSource
	validator record.Validator
	sink      Sink
	metrics   MetricsCollector
	logger    *slog.Logger
	limiter   *rate.Limiter

	mu     sync.RWMutex
	stages []stage

	produced   atomic.Int64
	dropped    atomic.Int64
	drained    atomic.Int64
	invalid    atomic.Int64
	sinkErrors atomic.Int64
}

// NewRunner creates a runner. Validator, sink and metrics may be nil.
func NewRunner(
	config Config,
	generator GeneratorConfig,
	allocator AllocatorStatsSource,
	validator record.Validator,
	sink Sink,
	metrics MetricsCollector,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if generator.RunID == "" {
		generator.RunID = uuid.NewString()
	}
	if config.Producers < 1 {
		config.Producers = 1
	}
	if config.Consumers < 1 {
		config.Consumers = 1
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 100 * time.Millisecond
	}
	if config.Backpressure <= 0 {
		config.Backpressure = time.Millisecond
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &Runner{
		config:    config,
		generator: generator,
		allocator: allocator,
		validator: validator,
		sink:      sink,
		metrics:   metrics,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// AddChunky registers a chunky buffer; each event is one entry.
func (r *Runner) AddChunky(name string, buf buffer.Chunky[byte]) {
	r.addStage(&chunkyStage{label: name, buf: buf})
}

// AddStreamy registers a streamy buffer; events are newline framed.
func (r *Runner) AddStreamy(name string, buf buffer.Streamy[byte]) {
	r.addStage(newStreamyStage(name, buf))
}

func (r *Runner) addStage(s stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

// AllocatorStats returns the allocator counters.
func (r *Runner) AllocatorStats() membuffers.AllocatorStats {
	if r.allocator == nil {
		return membuffers.AllocatorStats{}
	}
	return r.allocator.Stats()
}

// BufferStats returns a snapshot of every registered buffer.
func (r *Runner) BufferStats() map[string]buffer.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]buffer.Stats, len(r.stages))
	for _, s := range r.stages {
		out[s.name()] = s.stats()
	}
	return out
}

// Run starts producers and consumers and returns once producers have
// stopped and consumers have drained every buffer. Producer i writes to
// buffer i mod n and consumer j drains buffer j mod n.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.mu.RLock()
	stages := append([]stage(nil), r.stages...)
	r.mu.RUnlock()
	if len(stages) == 0 {
		return Summary{}, fmt.Errorf("no buffers registered")
	}

	start := time.Now()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if r.config.Duration > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, r.config.Duration)
		defer cancelRun()
	}

	r.logger.Info("workload started",
		"run_id", r.generator.RunID,
		"buffers", len(stages),
		"producers", r.config.Producers,
		"consumers", r.config.Consumers,
		"rate_per_second", r.config.RatePerSecond,
	)

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()
	producersDone := make(chan struct{})

	var consumers errgroup.Group
	for j := 0; j < r.config.Consumers; j++ {
		st := stages[j%len(stages)]
		consumers.Go(func() error {
			return r.consume(drainCtx, producersDone, st)
		})
	}

	flusherDone := make(chan struct{})
	stopFlusher := make(chan struct{})
	go r.flushLoop(stopFlusher, flusherDone)

	producers, prodCtx := errgroup.WithContext(runCtx)
	for i := 0; i < r.config.Producers; i++ {
		producer := i
		st := stages[i%len(stages)]
		producers.Go(func() error {
			return r.produce(prodCtx, producer, st)
		})
	}

	prodErr := producers.Wait()
	close(producersDone)
	r.logger.Info("producers stopped, draining", "produced", r.produced.Load())

	if r.config.DrainTimeout > 0 {
		timer := time.AfterFunc(r.config.DrainTimeout, cancelDrain)
		defer timer.Stop()
	}
	consErr := consumers.Wait()

	close(stopFlusher)
	<-flusherDone

	var flushErr error
	if r.sink != nil {
		flushErr = r.sink.Flush(context.Background())
	}

	summary := Summary{
		RunID:      r.generator.RunID,
		Produced:   r.produced.Load(),
		Dropped:    r.dropped.Load(),
		Drained:    r.drained.Load(),
		Invalid:    r.invalid.Load(),
		SinkErrors: r.sinkErrors.Load(),
		Elapsed:    time.Since(start),
	}
	r.logger.Info("workload finished",
		"run_id", summary.RunID,
		"produced", summary.Produced,
		"dropped", summary.Dropped,
		"drained", summary.Drained,
		"invalid", summary.Invalid,
		"sink_errors", summary.SinkErrors,
		"elapsed_ms", summary.Elapsed.Milliseconds(),
	)

	return summary, errors.Join(prodErr, consErr, flushErr)
}

func (r *Runner) produce(ctx context.Context, producer int, st stage) error {
	genConfig := r.generator
	if genConfig.FakerSeed != 0 {
		genConfig.FakerSeed += int64(producer)
	}
	gen := NewGenerator(genConfig, r.logger)

	for seq := int64(0); r.config.EventsPerProducer == 0 || seq < int64(r.config.EventsPerProducer); seq++ {
		if err := r.limiter.Wait(ctx); err != nil {
			// context done or its deadline is too close for another token
			return nil
		}

		entry, err := Encode(gen.Generate(producer, seq))
		if err != nil {
			return err
		}
		if err := r.stageEntry(ctx, st, producer, entry); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("producer %d: %w", producer, err)
		}
	}
	return nil
}

// stageEntry appends entry, retrying while the buffer is full. An entry
// that does not fit an empty buffer is dropped.
func (r *Runner) stageEntry(ctx context.Context, st stage, producer int, entry []byte) error {
	for {
		err := st.put(entry)
		if err != nil && apperrors.IsBackpressure(err) && st.isEmpty() {
			// the buffer may have drained after the failed put
			err = st.put(entry)
			if err != nil && apperrors.IsBackpressure(err) && st.isEmpty() {
				r.dropped.Add(1)
				r.logger.Warn("entry larger than buffer capacity, dropping",
					"buffer", st.name(),
					"producer", producer,
					"size", len(entry),
					"error", err,
				)
				return nil
			}
		}
		if err == nil {
			r.produced.Add(1)
			if r.metrics != nil {
				r.metrics.IncEventsProduced(st.name(), producer)
			}
			return nil
		}
		if !apperrors.IsBackpressure(err) {
			return err
		}

		if r.metrics != nil {
			r.metrics.IncBackpressureWaits(st.name())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.Backpressure):
		}
	}
}

func (r *Runner) consume(ctx context.Context, producersDone <-chan struct{}, st stage) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := st.take(r.config.ReadTimeout)
		switch {
		case errors.Is(err, apperrors.ErrEmpty):
			select {
			case <-producersDone:
				return nil
			default:
				continue
			}
		case errors.Is(err, apperrors.ErrBufferClosed):
			return nil
		case err != nil:
			return fmt.Errorf("consumer on %s: %w", st.name(), err)
		}

		for _, entry := range entries {
			r.drainEntry(st.name(), entry)
		}
	}
}

func (r *Runner) drainEntry(bufferName string, entry []byte) {
	rec, err := Decode(entry)
	if err == nil && r.validator != nil {
		err = r.validator.Validate(rec.Event)
	}
	if err != nil {
		r.invalid.Add(1)
		if r.metrics != nil {
			r.metrics.IncEventsDrained(bufferName, "invalid")
		}
		r.logger.Warn("invalid staged entry", "buffer", bufferName, "size", len(entry), "error", err)
		return
	}

	rec.Staging.Origin.Buffer = bufferName
	rec.DrainedAt = time.Now()

	r.drained.Add(1)
	if r.metrics != nil {
		r.metrics.IncEventsDrained(bufferName, "valid")
		r.metrics.ObserveStagingLatency(bufferName, rec.Latency().Seconds())
	}

	if r.sink != nil {
		if err := r.sink.Add(context.Background(), rec); err != nil {
			r.sinkErrors.Add(1)
			r.logger.Error("failed to sink record", "buffer", bufferName, "error", err)
		}
	}
}

func (r *Runner) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if r.sink == nil || r.config.FlushInterval <= 0 {
		<-stop
		return
	}

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.sink.FlushDue(context.Background()); err != nil {
				r.sinkErrors.Add(1)
				r.logger.Error("failed to flush due batches", "error", err)
			}
		}
	}
}
