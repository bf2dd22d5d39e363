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

import "errors"

var (
	// ErrMismatch means the aggregate after a round differs from the value
	// predicted by composing every operation sequentially.
	ErrMismatch = errors.New("atomicity violated")
	// ErrProbe means the single-threaded prior/result check failed.
	ErrProbe           = errors.New("fetch-and-op probe failed")
	ErrInvalidConfig   = errors.New("invalid stress config")
	ErrWordTooNarrow   = errors.New("word too narrow for worker masks")
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrUnpredictable is returned for scenarios whose final value depends on
	// the interleaving, which makes them unusable as a probe.
	ErrUnpredictable = errors.New("scenario result depends on interleaving")
)
