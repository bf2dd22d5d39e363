/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package stress

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/internal/shm"
	"github.com/srediag/fetchop/pkg/fetchop"
)

// Fetcher applies op to *p with operand x and returns the prior value and the
// number of failed compare-and-swap attempts. fetchop.FetchCounted is the
// fetcher under test by default.
type Fetcher[T fetchop.Word] func(op fetchop.Op, p *T, x T) (old T, retries int)

// Runner executes scenarios one after another against a single cell.
type Runner struct {
	config  Config
	runID   string
	started time.Time
	host    HostInfo

	logger  *logging.Logger
	metrics *Metrics
	meter   metric.Meter
	otel    *otelInstruments
	tracer  trace.Tracer

	results cmap.ConcurrentMap[string, Result]
	mu      sync.Mutex
	seq     int
	region  *shm.MappedRegion
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger replaces the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics makes the runner update m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithMeter records op and retry counters on an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(r *Runner) { r.meter = m }
}

// WithTracer opens one span per scenario on t.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner verifies config and prepares the cell source. Close must be
// called to release a shared memory region.
func NewRunner(ctx context.Context, config *Config, opts ...Option) (*Runner, error) {
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	r := &Runner{
		config:  *config,
		runID:   uuid.NewString(),
		started: time.Now(),
		host:    CollectHostInfo(),
		logger:  logging.Default.Named("stress"),
		results: cmap.New[Result](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		r.metrics = m
	}
	if r.tracer == nil {
		r.tracer = tracenoop.NewTracerProvider().Tracer(metricsNamespace)
	}
	inst, err := newOtelInstruments(r.meter)
	if err != nil {
		return nil, fmt.Errorf("otel instruments: %w", err)
	}
	r.otel = inst

	if r.host.LogicalCPUs > 0 && config.Workers > r.host.LogicalCPUs {
		r.logger.Warnf("%d workers on %d logical CPUs, contention is limited to time slicing",
			config.Workers, r.host.LogicalCPUs)
	}
	if config.Cells == CellsShm {
		region, err := shm.MapRegion(ctx, shm.MapOptions{
			Name:   config.ShmName,
			Size:   shmRegionSize,
			Create: config.ShmName != "",
		})
		if err != nil {
			return nil, fmt.Errorf("map cell region: %w", err)
		}
		if !region.Shared {
			r.logger.Warnf("shared memory unavailable on %s, cells fall back to process memory", runtime.GOOS)
		}
		r.region = region
	}
	r.logger.Infof("run %s: workers=%d width=%s cells=%s", r.runID, config.Workers, config.Width, config.Cells)
	return r, nil
}

// Close releases the shared memory region, if any.
func (r *Runner) Close(ctx context.Context) error {
	if r.region == nil {
		return nil
	}
	err := shm.UnmapRegion(ctx, r.region)
	r.region = nil
	return err
}

// RunID identifies this runner in logs and reports.
func (r *Runner) RunID() string {
	return r.runID
}

// Config returns a copy of the verified configuration.
func (r *Runner) Config() Config {
	return r.config
}

// Result returns the latest result recorded for the named scenario.
func (r *Runner) Result(name string) (Result, bool) {
	return r.results.Get(name)
}

// Results returns the latest result of every scenario in run order.
func (r *Runner) Results() []Result {
	out := make([]Result, 0, r.results.Count())
	for _, res := range r.results.Items() {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Report assembles the JSON report from the recorded results.
func (r *Runner) Report() Report {
	results := r.Results()
	passed := len(results) > 0
	for _, res := range results {
		passed = passed && res.Passed
	}
	return Report{
		RunID:    r.runID,
		Started:  r.started,
		Finished: time.Now(),
		Host:     r.host,
		Config:   r.config,
		Results:  results,
		Passed:   passed,
	}
}

func (r *Runner) record(res Result) Result {
	r.mu.Lock()
	r.seq++
	res.Seq = r.seq
	r.mu.Unlock()
	r.results.Set(res.Scenario, res)
	return res
}

const cellOffset = 64

// cell returns the contended cell for the next scenario.
func cell[T fetchop.Word](r *Runner) (*T, error) {
	if r.region == nil {
		return new(T), nil
	}
	return shm.WordAt[T](r.region, cellOffset)
}

// workerReport is what each worker hands back after a round.
type workerReport struct {
	worker  int
	retries int64
}

// Run executes sc with the default fetcher.
func Run[T fetchop.Word](ctx context.Context, r *Runner, sc Scenario[T]) (Result, error) {
	return RunWith(ctx, r, sc, fetchop.FetchCounted[T])
}

// RunWith executes sc using fetch for every operation: first the
// single-threaded probe, then Rounds rounds of contention. It stops at the
// first round whose aggregate differs from sc.Expected and returns an error
// wrapping ErrMismatch. ctx is checked between rounds only.
func RunWith[T fetchop.Word](ctx context.Context, r *Runner, sc Scenario[T], fetch Fetcher[T]) (res Result, err error) {
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}
	width := fetchop.Bits[T]()
	expected := sc.Expected()
	res = Result{
		Scenario:   sc.Name,
		Op:         sc.Op,
		Width:      width,
		Cells:      r.config.Cells,
		Workers:    sc.Workers,
		Iterations: sc.Iterations,
		Rounds:     sc.Rounds,
		Expected:   fmt.Sprint(expected),
	}
	ctx, span := r.tracer.Start(ctx, "stress."+sc.Name, trace.WithAttributes(
		attribute.String("op", sc.Op.String()),
		attribute.Int("width", width),
		attribute.Int("workers", sc.Workers),
		attribute.Int("iterations", sc.Iterations),
		attribute.Int("rounds", sc.Rounds),
	))
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		res.Passed = err == nil
		if err != nil {
			res.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		res = r.record(res)
	}()

	if err := probe(sc, fetch); err != nil {
		r.logger.Errorf("%s: %v", sc.Name, err)
		return res, err
	}

	p, err := cell[T](r)
	if err != nil {
		return res, err
	}
	pool, err := ants.NewPool(sc.Workers, ants.WithPreAlloc(true))
	if err != nil {
		return res, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	for round := 0; round < sc.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fetchop.Store(p, sc.Initial)
		retries, d, err := contend(r.logger, pool, sc, p, fetch)
		if err != nil {
			return res, err
		}
		actual := fetchop.Load(p)
		ok := actual == expected
		res.RoundsRun++
		res.Ops += sc.Ops()
		res.CASRetries += retries
		res.Actual = fmt.Sprint(actual)
		r.metrics.observeRound(sc.Name, sc.Op.String(), width, sc.Ops(), retries, d, ok)
		r.otel.record(ctx, sc.Op.String(), width, sc.Ops(), retries)
		if !ok {
			err := fmt.Errorf("%w: %s round %d/%d: expected %d (%#x), got %d (%#x)",
				ErrMismatch, sc.Name, round+1, sc.Rounds, expected, expected, actual, actual)
			r.logger.Errorf("%v", err)
			return res, err
		}
		r.logger.Tracef("%s round %d/%d ok in %s, %d retries", sc.Name, round+1, sc.Rounds, d, retries)
	}
	r.logger.Infof("%s passed: %d rounds, %d ops, %d retries", sc.Name, res.RoundsRun, res.Ops, res.CASRetries)
	return res, nil
}

// probe checks prior value and result of one uncontended call.
func probe[T fetchop.Word](sc Scenario[T], fetch Fetcher[T]) error {
	v := sc.Probe.Start
	prior, _ := fetch(sc.Op, &v, sc.Probe.Operand)
	want := fetchop.Apply(sc.Op, sc.Probe.Start, sc.Probe.Operand)
	if prior != sc.Probe.Start || v != want {
		return fmt.Errorf("%w: %s %d with %d returned %d and left %d, want %d and %d",
			ErrProbe, sc.Op, sc.Probe.Start, sc.Probe.Operand, prior, v, sc.Probe.Start, want)
	}
	return nil
}

// contend runs one round: every worker is pinned to an OS thread and parked
// on a start barrier, released at once, and joined before returning.
func contend[T fetchop.Word](log *logging.Logger, pool *ants.Pool, sc Scenario[T], p *T, fetch Fetcher[T]) (retries int64, d time.Duration, err error) {
	reports := queuepkg.New(int64(sc.Workers))
	defer reports.Dispose()

	var ready, done sync.WaitGroup
	startCh := make(chan struct{})
	for w := 0; w < sc.Workers; w++ {
		worker := w
		x := sc.Operand(worker)
		ready.Add(1)
		done.Add(1)
		task := func() {
			defer done.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			ready.Done()
			<-startCh
			var n int
			for i := 0; i < sc.Iterations; i++ {
				_, r := fetch(sc.Op, p, x)
				n += r
			}
			_ = reports.Put(workerReport{worker: worker, retries: int64(n)})
		}
		if err := pool.Submit(task); err != nil {
			// release the workers already parked so they can exit
			ready.Done()
			done.Done()
			close(startCh)
			done.Wait()
			return 0, 0, fmt.Errorf("submit worker %d: %w", worker, err)
		}
	}
	ready.Wait()
	begin := time.Now()
	close(startCh)
	done.Wait()
	d = time.Since(begin)

	for collected := 0; collected < sc.Workers; {
		items, err := reports.Get(int64(sc.Workers - collected))
		if err != nil {
			return 0, d, fmt.Errorf("collect worker reports: %w", err)
		}
		for _, it := range items {
			rep := it.(workerReport)
			log.Tracef("%s worker %d: %d retries", sc.Name, rep.worker, rep.retries)
			retries += rep.retries
		}
		collected += len(items)
	}
	return retries, d, nil
}

// RunAll runs scenarios in order and stops at the first error.
func RunAll[T fetchop.Word](ctx context.Context, r *Runner, scenarios []Scenario[T]) error {
	return RunAllWith(ctx, r, scenarios, fetchop.FetchCounted[T])
}

// RunAllWith is RunAll with fetch applied by every scenario.
func RunAllWith[T fetchop.Word](ctx context.Context, r *Runner, scenarios []Scenario[T], fetch Fetcher[T]) error {
	for _, sc := range scenarios {
		if _, err := RunWith(ctx, r, sc, fetch); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the configured scenarios on the configured width.
func (r *Runner) Execute(ctx context.Context) error {
	switch r.config.Width {
	case Width32:
		return executeWidth[int32](ctx, r)
	case Width64:
		return executeWidth[int64](ctx, r)
	default:
		return executeWidth[int](ctx, r)
	}
}

func executeWidth[T fetchop.Word](ctx context.Context, r *Runner) error {
	return ExecuteWith(ctx, r, fetchop.FetchCounted[T])
}

// ExecuteWith is Execute with fetch applied by every scenario. T must match
// the configured width.
func ExecuteWith[T fetchop.Word](ctx context.Context, r *Runner, fetch Fetcher[T]) error {
	if bits := fetchop.Bits[T](); bits != r.config.Width.Bits() {
		return fmt.Errorf("%w: %d-bit fetcher for width %s", ErrInvalidConfig, bits, r.config.Width)
	}
	scenarios, err := ConfiguredScenarios[T](&r.config)
	if err != nil {
		return err
	}
	return RunAllWith(ctx, r, scenarios, fetch)
}

// PlanEntry describes a configured scenario without running it.
type PlanEntry struct {
	Name       string
	Op         fetchop.Op
	Width      int
	Workers    int
	Iterations int
	Rounds     int
	Initial    string
	Expected   string
}

// Plan lists the scenarios config would run.
func Plan(config *Config) ([]PlanEntry, error) {
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	switch config.Width {
	case Width32:
		return planWidth[int32](config)
	case Width64:
		return planWidth[int64](config)
	default:
		return planWidth[int](config)
	}
}

func planWidth[T fetchop.Word](config *Config) ([]PlanEntry, error) {
	scenarios, err := ConfiguredScenarios[T](config)
	if err != nil {
		return nil, err
	}
	out := make([]PlanEntry, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, PlanEntry{
			Name:       sc.Name,
			Op:         sc.Op,
			Width:      fetchop.Bits[T](),
			Workers:    sc.Workers,
			Iterations: sc.Iterations,
			Rounds:     sc.Rounds,
			Initial:    fmt.Sprint(sc.Initial),
			Expected:   fmt.Sprint(sc.Expected()),
		})
	}
	return out, nil
}
