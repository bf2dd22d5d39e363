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
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/pkg/fetchop"
)

// Width selects the integer type the scenarios run on.
type Width string

const (
	Width32     Width = "32"
	Width64     Width = "64"
	WidthNative Width = "native"
)

// Bits returns the width in bits, or 0 if w is unknown.
func (w Width) Bits() int {
	switch w {
	case Width32:
		return 32
	case Width64:
		return 64
	case WidthNative:
		return fetchop.NativeBits
	}
	return 0
}

// CellSource selects where the contended cell lives.
type CellSource string

const (
	// CellsHeap places the cell in ordinary process memory.
	CellsHeap CellSource = "heap"
	// CellsShm places the cell in a MAP_SHARED memory region.
	CellsShm CellSource = "shm"
)

const (
	defaultWorkers = 8
	shmRegionSize  = 4096
)

// Config controls which scenarios run and how.
type Config struct {
	// Workers is the number of contending threads. The nand scenario rounds
	// it down to the nearest odd count.
	Workers int `json:"workers"`
	// Width selects int32, int64 or the native int.
	Width Width `json:"width"`
	// Cells selects heap or shared memory placement of the cell.
	Cells CellSource `json:"cells"`
	// ShmName places the cell in /dev/shm/<ShmName> instead of an anonymous memfd.
	ShmName string `json:"shm_name,omitempty"`
	// Iterations overrides the per-worker iteration count when positive.
	Iterations int `json:"iterations,omitempty"`
	// Rounds overrides the repetition count when positive.
	Rounds int `json:"rounds,omitempty"`
	// Scenarios restricts the run to the named scenarios. Empty runs all.
	Scenarios []string `json:"scenarios,omitempty"`
	// ReportPath is where the JSON report is written. Empty disables it.
	ReportPath string `json:"report_path,omitempty"`
	// ListenAddr is the metrics and health address in serve mode.
	ListenAddr string `json:"listen_addr,omitempty"`
	// LogLevel is one of the logging.Level* values.
	LogLevel int `json:"log_level"`
}

// DefaultConfig returns eight workers contending on 32-bit heap cells.
func DefaultConfig() *Config {
	return &Config{
		Workers:    defaultWorkers,
		Width:      Width32,
		Cells:      CellsHeap,
		ListenAddr: ":9464",
		LogLevel:   logging.Level(),
	}
}

// VerifyConfig checks that config can drive every selected scenario.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	bits := config.Width.Bits()
	if bits == 0 {
		return fmt.Errorf("%w: width %q, want 32, 64 or native", ErrInvalidConfig, config.Width)
	}
	if config.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be at least 1", ErrInvalidConfig, config.Workers)
	}
	// the or/and/xor masks use one bit per worker plus one sentinel bit
	if config.Workers >= bits {
		return fmt.Errorf("%w: %d workers need %d bits, width is %d", ErrWordTooNarrow, config.Workers, config.Workers+1, bits)
	}
	if config.Cells != CellsHeap && config.Cells != CellsShm {
		return fmt.Errorf("%w: cells %q, want heap or shm", ErrInvalidConfig, config.Cells)
	}
	if config.Iterations < 0 || config.Rounds < 0 {
		return fmt.Errorf("%w: iterations %d and rounds %d must not be negative", ErrInvalidConfig, config.Iterations, config.Rounds)
	}
	if config.LogLevel < logging.LevelTrace || config.LogLevel > logging.LevelNoPrint {
		return fmt.Errorf("%w: log level %d", ErrInvalidConfig, config.LogLevel)
	}
	known := make(map[string]bool, len(scenarioNames))
	for _, n := range scenarioNames {
		known[n] = true
	}
	for _, n := range config.Scenarios {
		if !known[n] {
			return fmt.Errorf("%w: %q", ErrUnknownScenario, n)
		}
	}
	return nil
}

// LoadConfigFile applies the JSON-with-comments file at path on top of
// config. Fields absent from the file keep their current values.
func LoadConfigFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(config, data)
}

// ParseConfig is LoadConfigFile for in-memory data.
func ParseConfig(config *Config, data []byte) error {
	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := json.Unmarshal(std, config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
