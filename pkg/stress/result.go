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
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"time"

	"github.com/natefinch/atomic"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/fetchop/pkg/fetchop"
)

// Result is the outcome of one scenario.
type Result struct {
	Seq        int        `json:"seq"`
	Scenario   string     `json:"scenario"`
	Op         fetchop.Op `json:"op"`
	Width      int        `json:"width"`
	Cells      CellSource `json:"cells"`
	Workers    int        `json:"workers"`
	Iterations int        `json:"iterations"`
	Rounds     int        `json:"rounds"`
	// RoundsRun is less than Rounds when the scenario stopped early.
	RoundsRun  int           `json:"rounds_run"`
	Expected   string        `json:"expected"`
	Actual     string        `json:"actual"`
	Ops        int64         `json:"ops"`
	CASRetries int64         `json:"cas_retries"`
	Duration   time.Duration `json:"duration_ns"`
	Passed     bool          `json:"passed"`
	Error      string        `json:"error,omitempty"`
}

func (r Result) String() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	r.appendLine(buf)
	return buf.String()
}

func (r Result) appendLine(buf *bytebufferpool.ByteBuffer) {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	_, _ = buf.WriteString(status)
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(r.Scenario)
	_, _ = fmt.Fprintf(buf, " op=%s width=%d cells=%s workers=%d iterations=%d rounds=%d/%d",
		r.Op, r.Width, r.Cells, r.Workers, r.Iterations, r.RoundsRun, r.Rounds)
	_, _ = fmt.Fprintf(buf, " expected=%s actual=%s retries=%d took=%s", r.Expected, r.Actual, r.CASRetries, r.Duration)
	if r.Error != "" {
		_, _ = buf.WriteString(" error=")
		_, _ = buf.WriteString(strconv.Quote(r.Error))
	}
}

// RenderText writes one line per result to w.
func RenderText(w io.Writer, results []Result) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, r := range results {
		r.appendLine(buf)
		_ = buf.WriteByte('\n')
	}
	_, err := buf.WriteTo(w)
	return err
}

// HostInfo describes the machine a report was produced on.
type HostInfo struct {
	GOOS         string `json:"goos"`
	GOARCH       string `json:"goarch"`
	NativeBits   int    `json:"native_bits"`
	PhysicalCPUs int    `json:"physical_cpus"`
	LogicalCPUs  int    `json:"logical_cpus"`
	GOMAXPROCS   int    `json:"gomaxprocs"`
}

// CollectHostInfo fills HostInfo. CPU counts are zero if unavailable.
func CollectHostInfo() HostInfo {
	h := HostInfo{
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		NativeBits: fetchop.NativeBits,
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}
	if n, err := cpu.Counts(false); err == nil {
		h.PhysicalCPUs = n
	}
	if n, err := cpu.Counts(true); err == nil {
		h.LogicalCPUs = n
	}
	return h
}

// Report is the JSON document written at the end of a run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Host     HostInfo  `json:"host"`
	Config   Config    `json:"config"`
	Results  []Result  `json:"results"`
	Passed   bool      `json:"passed"`
}

// WriteReport atomically replaces the file at path with rep as JSON.
func WriteReport(path string, rep Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
