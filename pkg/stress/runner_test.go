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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/pkg/fetchop"
)

type RunnerTestSuite struct {
	suite.Suite
	ctx     context.Context
	reg     *prometheus.Registry
	metrics *Metrics
	log     bytes.Buffer
}

func (s *RunnerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.reg = prometheus.NewRegistry()
	m, err := NewMetrics(s.reg)
	s.Require().NoError(err)
	s.metrics = m
	s.log.Reset()
}

func (s *RunnerTestSuite) newRunner(config *Config) *Runner {
	r, err := NewRunner(s.ctx, config, WithMetrics(s.metrics), WithLogger(logging.New("test", &s.log)))
	s.Require().NoError(err)
	s.T().Cleanup(func() { s.NoError(r.Close(s.ctx)) })
	return r
}

// quickConfig keeps the default scenario shapes but fewer rounds.
func (s *RunnerTestSuite) quickConfig() *Config {
	config := DefaultConfig()
	if testing.Short() {
		config.Rounds = 3
	} else {
		config.Rounds = 20
	}
	return config
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func (s *RunnerTestSuite) TestExecuteAllWidths() {
	for _, w := range []Width{Width32, Width64, WidthNative} {
		config := s.quickConfig()
		config.Width = w
		r := s.newRunner(config)
		s.Require().NoError(r.Execute(s.ctx), "width %s", w)

		results := r.Results()
		s.Require().Len(results, 6)
		for i, res := range results {
			s.True(res.Passed, res.String())
			s.Equal(ScenarioNames()[i], res.Scenario)
			s.Equal(res.Expected, res.Actual, res.Scenario)
			s.Equal(res.Rounds, res.RoundsRun, res.Scenario)
			s.Equal(w.Bits(), res.Width)
		}
		s.True(r.Report().Passed)
	}
}

func (s *RunnerTestSuite) TestDefaultScenariosFullRounds() {
	if testing.Short() {
		s.T().Skip("100 rounds per scenario")
	}
	r := s.newRunner(DefaultConfig())
	s.Require().NoError(r.Execute(s.ctx))

	res, ok := r.Result(ScenarioNand)
	s.Require().True(ok)
	s.Equal(100, res.RoundsRun)
	s.Equal("-1", res.Actual)
	res, ok = r.Result(ScenarioAdd)
	s.Require().True(ok)
	s.Equal("80001", res.Actual)
}

func (s *RunnerTestSuite) TestSharedMemoryCells() {
	config := s.quickConfig()
	config.Cells = CellsShm
	config.Width = Width64
	r := s.newRunner(config)
	s.Require().NoError(r.Execute(s.ctx))
	for _, res := range r.Results() {
		s.True(res.Passed, res.String())
		s.Equal(CellsShm, res.Cells)
	}
}

// lossy performs every op atomically but silently drops one in every n calls.
func lossy[T fetchop.Word](n int64) Fetcher[T] {
	var calls atomic.Int64
	return func(op fetchop.Op, p *T, x T) (T, int) {
		if calls.Add(1)%n == 0 {
			return fetchop.Load(p), 0
		}
		return fetchop.FetchCounted(op, p, x)
	}
}

func (s *RunnerTestSuite) TestDetectsLostUpdates() {
	r := s.newRunner(s.quickConfig())
	scenarios, err := DefaultScenarios[int32](8)
	s.Require().NoError(err)

	res, err := RunWith(s.ctx, r, scenarios[0], lossy[int32](1000))
	s.Require().ErrorIs(err, ErrMismatch)
	s.False(res.Passed)
	s.Equal(1, res.RoundsRun)
	s.Equal("80001", res.Expected)
	s.Equal("79921", res.Actual)
	s.Contains(res.Error, "round 1/1")
	s.Contains(s.log.String(), "atomicity violated")

	s.Equal(float64(1), counterValue(s.metrics.Mismatches.WithLabelValues(ScenarioAdd)))
	s.Equal(float64(1), counterValue(s.metrics.Rounds.WithLabelValues(ScenarioAdd, "fail")))

	stored, ok := r.Result(ScenarioAdd)
	s.Require().True(ok)
	s.False(stored.Passed)
	s.False(r.Report().Passed)
}

func (s *RunnerTestSuite) TestStopsAtFirstMismatch() {
	r := s.newRunner(s.quickConfig())
	scenarios, err := DefaultScenarios[int64](8)
	s.Require().NoError(err)
	xor := scenarios[4]
	s.Require().Equal(ScenarioXor, xor.Name)

	// dropping one xor per round flips the outcome of every round
	res, err := RunWith(s.ctx, r, xor, lossy[int64](xor.Ops()))
	s.Require().ErrorIs(err, ErrMismatch)
	s.Equal(1, res.RoundsRun, "fail fast on the first bad round")
}

func (s *RunnerTestSuite) TestProbeCatchesWrongPrior() {
	r := s.newRunner(s.quickConfig())
	scenarios, err := DefaultScenarios[int32](8)
	s.Require().NoError(err)

	returnsNew := func(op fetchop.Op, p *int32, x int32) (int32, int) {
		fetchop.Fetch(op, p, x)
		return fetchop.Load(p), 0
	}
	res, err := RunWith(s.ctx, r, scenarios[1], returnsNew)
	s.Require().ErrorIs(err, ErrProbe)
	s.Equal(0, res.RoundsRun)
}

func (s *RunnerTestSuite) TestRetriesAreCounted() {
	config := s.quickConfig()
	config.Scenarios = []string{ScenarioNand}
	r := s.newRunner(config)

	always := func(op fetchop.Op, p *int32, x int32) (int32, int) {
		old, _ := fetchop.FetchCounted(op, p, x)
		return old, 1
	}
	scenarios, err := ConfiguredScenarios[int32](config)
	s.Require().NoError(err)
	res, err := RunWith(s.ctx, r, scenarios[0], always)
	s.Require().NoError(err)
	s.Equal(res.Ops, res.CASRetries)
	s.Equal(float64(res.Ops), counterValue(s.metrics.CASRetries.WithLabelValues("nand", "32")))
	s.Equal(float64(res.Ops), counterValue(s.metrics.Ops.WithLabelValues("nand", "32")))
}

func (s *RunnerTestSuite) TestTracesWorkerRetries() {
	level := logging.Level()
	logging.SetLevel(logging.LevelTrace)
	defer logging.SetLevel(level)

	config := s.quickConfig()
	config.Workers = 3
	config.Iterations = 5
	config.Rounds = 1
	config.Scenarios = []string{ScenarioXor}
	r := s.newRunner(config)

	always := func(op fetchop.Op, p *int32, x int32) (int32, int) {
		old, _ := fetchop.FetchCounted(op, p, x)
		return old, 1
	}
	scenarios, err := ConfiguredScenarios[int32](config)
	s.Require().NoError(err)
	_, err = RunWith(s.ctx, r, scenarios[0], always)
	s.Require().NoError(err)

	out := s.log.String()
	for w := 0; w < 3; w++ {
		s.Contains(out, fmt.Sprintf("fetch_and_xor worker %d: 5 retries", w))
	}
}

func (s *RunnerTestSuite) TestExecuteWithChecksWidth() {
	config := s.quickConfig()
	config.Width = Width64
	r := s.newRunner(config)
	s.ErrorIs(ExecuteWith(s.ctx, r, fetchop.FetchCounted[int32]), ErrInvalidConfig)

	config.Scenarios = []string{ScenarioAdd}
	r = s.newRunner(config)
	s.ErrorIs(ExecuteWith(s.ctx, r, lossy[int64](1000)), ErrMismatch)
}

func (s *RunnerTestSuite) TestRunAllStopsAtFirstError() {
	r := s.newRunner(s.quickConfig())
	scenarios, err := DefaultScenarios[int32](4)
	s.Require().NoError(err)
	s.Require().NoError(RunAll(s.ctx, r, scenarios[2:4]))
	s.Len(r.Results(), 2)

	err = RunAllWith(s.ctx, r, scenarios, lossy[int32](1000))
	s.ErrorIs(err, ErrMismatch)
	res, ok := r.Result(ScenarioAdd)
	s.Require().True(ok)
	s.False(res.Passed)
	_, ran := r.Result(ScenarioSub)
	s.False(ran, "scenarios after the failing one do not run")
	s.Len(r.Results(), 3)
}

func (s *RunnerTestSuite) TestCanceledContext() {
	r := s.newRunner(s.quickConfig())
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := r.Execute(ctx)
	s.ErrorIs(err, context.Canceled)
	res, ok := r.Result(ScenarioAdd)
	s.Require().True(ok)
	s.Equal(0, res.RoundsRun)
	s.False(res.Passed)
}

func (s *RunnerTestSuite) TestReportRoundTrip() {
	config := s.quickConfig()
	config.Scenarios = []string{ScenarioOr, ScenarioAnd}
	path := filepath.Join(s.T().TempDir(), "report.json")
	config.ReportPath = path
	r := s.newRunner(config)
	s.Require().NoError(r.Execute(s.ctx))

	rep := r.Report()
	s.Require().NoError(WriteReport(path, rep))
	data, err := os.ReadFile(path)
	s.Require().NoError(err)

	var got Report
	s.Require().NoError(json.Unmarshal(data, &got))
	s.Equal(r.RunID(), got.RunID)
	s.True(got.Passed)
	s.Equal(fetchop.NativeBits, got.Host.NativeBits)
	if diff := cmp.Diff(rep.Results, got.Results, cmpopts.EquateEmpty()); diff != "" {
		s.T().Errorf("report results mismatch (-want +got):\n%s", diff)
	}
	s.Equal([]string{ScenarioOr, ScenarioAnd}, got.Config.Scenarios)
}

func (s *RunnerTestSuite) TestRenderText() {
	config := s.quickConfig()
	config.Scenarios = []string{ScenarioSub}
	r := s.newRunner(config)
	s.Require().NoError(r.Execute(s.ctx))

	var out bytes.Buffer
	s.Require().NoError(RenderText(&out, r.Results()))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 1)
	s.True(strings.HasPrefix(lines[0], "PASS fetch_and_sub op=sub width=32"), lines[0])
	s.Contains(lines[0], "expected=-79999 actual=-79999")
}

func (s *RunnerTestSuite) TestMetricsRegisterOnce() {
	_, err := NewMetrics(s.reg)
	s.Error(err, "collectors are already registered on the registry")
}

func (s *RunnerTestSuite) TestNewRunnerRejectsInvalidConfig() {
	config := DefaultConfig()
	config.Workers = 40
	_, err := NewRunner(s.ctx, config)
	s.ErrorIs(err, ErrWordTooNarrow)
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}
