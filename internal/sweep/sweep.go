package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/mesh-simulator/internal/config"
	"github.com/signalsfoundry/mesh-simulator/internal/experiment"
	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/internal/observability"
)

// DoneMarker is created in the output directory once every bucket ran.
const DoneMarker = ".done"

// RunFunc executes one combination. A returned error leaves the
// combination out of the done set so the next sweep retries it.
type RunFunc func(ctx context.Context, c Combination) error

// Sweeper coordinates a sweep. Only the goroutine calling Run touches the
// done set and the store.
type Sweeper struct {
	cfg     config.Sweep
	run     RunFunc
	store   Store
	log     logging.Logger
	metrics *observability.SweepCollector
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithStore replaces the checkpoint file store.
func WithStore(s Store) Option {
	return func(sw *Sweeper) { sw.store = s }
}

// WithLogger sets the sweep logger.
func WithLogger(l logging.Logger) Option {
	return func(sw *Sweeper) {
		if l != nil {
			sw.log = l
		}
	}
}

// WithMetrics sets the sweep collector.
func WithMetrics(m *observability.SweepCollector) Option {
	return func(sw *Sweeper) { sw.metrics = m }
}

// New creates a sweeper over cfg, which is defaulted and validated.
func New(cfg config.Sweep, run RunFunc, opts ...Option) (*Sweeper, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: sweep without run function", config.ErrInvalidConfig)
	}
	s := &Sweeper{
		cfg:   cfg,
		run:   run,
		store: FileStore{Path: cfg.Checkpoint},
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run processes every bucket. Combinations already in the checkpoint are
// skipped. Cancelling ctx starts no new combination but lets in-flight
// ones finish; the checkpoint is saved either way and ctx.Err() returned.
func (s *Sweeper) Run(ctx context.Context) error {
	done, err := s.store.Load()
	if err != nil {
		return err
	}
	space := Space(s.cfg)
	total := len(space)
	buckets := Buckets(space, s.cfg.MaxMemoryGB, s.cfg.ShuffleSeed)

	s.log.Info(ctx, "sweep started",
		logging.Int("combinations", total),
		logging.Int("done", countDone(space, done)),
		logging.Int("buckets", len(buckets)),
		logging.String("checkpoint", s.cfg.Checkpoint),
	)
	s.metrics.SetProgress(countDone(space, done), total)

	for _, b := range buckets {
		if err := s.runBucket(ctx, b, done, total); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cfg.OutputDir, DoneMarker), nil, 0o644); err != nil {
		return fmt.Errorf("write done marker: %w", err)
	}
	s.log.Info(ctx, "sweep finished", logging.Int("combinations", total))
	return nil
}

func countDone(space []Combination, done map[string]bool) int {
	n := 0
	for _, c := range space {
		if done[c.Key()] {
			n++
		}
	}
	return n
}

type outcome struct {
	c   Combination
	err error
	ack chan struct{}
}

func (s *Sweeper) runBucket(ctx context.Context, b Bucket, done map[string]bool, total int) (err error) {
	pending := make([]Combination, 0, len(b.Combinations))
	for _, c := range b.Combinations {
		if !done[c.Key()] {
			pending = append(pending, c)
		}
	}
	skipped := len(b.Combinations) - len(pending)
	s.metrics.CombinationsSkipped(skipped)
	if len(pending) == 0 {
		return nil
	}

	ctx, span := observability.Tracer().Start(ctx, "sweep.bucket", trace.WithAttributes(
		attribute.Int("memory_gb", b.MemoryGB),
		attribute.Int("pool_size", b.PoolSize),
		attribute.Int("pending", len(pending)),
	))
	defer span.End()
	s.log.Info(ctx, "starting bucket",
		logging.Int("memory_gb", b.MemoryGB),
		logging.Int("pool_size", b.PoolSize),
		logging.Int("pending", len(pending)),
		logging.Int("skipped", skipped),
	)

	// Saved on every exit path, interrupted or not. A failed periodic
	// save is retried here; the latest save error is the one returned.
	var saveErr error
	defer func() {
		if finalErr := s.save(done); finalErr != nil {
			if saveErr != nil {
				err = finalErr
			} else {
				err = errors.Join(err, finalErr)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	// stopCtx ends dispatching on cancellation or on a failed save.
	// Workers run on workCtx so in-flight combinations finish.
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	workCtx := context.WithoutCancel(ctx)
	results := make(chan outcome)
	go func() {
		var g errgroup.Group
		g.SetLimit(b.PoolSize)
		for _, c := range pending {
			if stopCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if stopCtx.Err() != nil {
					return nil
				}
				ack := make(chan struct{})
				results <- outcome{c: c, err: s.runOne(workCtx, c), ack: ack}
				// Hold the pool slot until the coordinator has handled the
				// result, so a failed save is seen before the next start.
				<-ack
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	completed := 0
	for r := range results {
		s.handle(ctx, r, done, total, b)
		if r.err == nil {
			completed++
			if saveErr == nil && completed%s.cfg.SaveEvery == 0 {
				if saveErr = s.save(done); saveErr != nil {
					s.log.Error(ctx, "checkpoint save failed, stopping sweep",
						logging.String("checkpoint", s.cfg.Checkpoint), logging.Err(saveErr))
					stop()
				}
			}
		}
		close(r.ack)
	}
	return saveErr
}

func (s *Sweeper) handle(ctx context.Context, r outcome, done map[string]bool, total int, b Bucket) {
	if r.err != nil {
		s.log.Warn(ctx, "combination failed",
			logging.String("combination", r.c.Key()), logging.Err(r.err))
		return
	}
	done[r.c.Key()] = true
	s.metrics.SetProgress(len(done), total)
	s.log.Info(ctx, "combination done",
		logging.String("combination", r.c.Key()),
		logging.Float("progress", float64(len(done))/float64(total)),
		logging.Int("bucket_done", countDone(b.Combinations, done)),
	)
}

func (s *Sweeper) runOne(ctx context.Context, c Combination) (err error) {
	key := c.Key()
	ctx, log := logging.WithRunLogger(ctx, s.log, key)
	ctx = logging.ContextWithLogger(ctx, log)
	ctx, span := observability.Tracer().Start(ctx, "sweep.combination", trace.WithAttributes(
		attribute.String("combination", key),
	))
	defer span.End()

	s.metrics.CombinationStarted()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("combination %s panicked: %v", key, r)
		}
		s.metrics.CombinationFinished(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	log.Debug(ctx, "combination started", logging.Int("memory_gb", MemoryGB(c)))
	return s.run(ctx, c)
}

func (s *Sweeper) save(done map[string]bool) error {
	if err := s.store.Save(done); err != nil {
		return err
	}
	s.metrics.CheckpointSaved()
	return nil
}

// MessageSizeRunner runs each combination as an experiment.MessageSize
// run under env.OutputDir. The run seed is derived from the combination
// so reruns are reproducible.
func MessageSizeRunner(cfg config.Sweep, env experiment.Env) RunFunc {
	cfg = cfg.WithDefaults()
	if env.OutputDir == "" {
		env.OutputDir = cfg.OutputDir
	}
	return func(ctx context.Context, c Combination) error {
		runEnv := env
		if l := logging.LoggerFromContext(ctx); l != nil {
			runEnv.Log = l
		}
		_, err := experiment.MessageSize(ctx, experiment.MessageSizeParams{
			Size:           c.Size,
			Mesh:           c.Mesh,
			Loss:           c.Loss,
			FullInterval:   c.Interval,
			EffectiveTime:  cfg.EffectiveTime,
			SettlingBuffer: cfg.SettlingBuffer,
			Seed:           seedFor(cfg.ShuffleSeed, c),
		}, runEnv)
		return err
	}
}

func seedFor(base uint64, c Combination) uint64 {
	seed := base
	for _, v := range []int{c.Size, c.Mesh, c.Loss, c.Interval} {
		seed = seed*1_000_003 + uint64(v)
	}
	if seed == 0 {
		seed = 1
	}
	return seed
}
