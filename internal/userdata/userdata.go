// Copyright 2025 Lumina Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package userdata compiles a pool's raw userdata template into the final
// script handed to RequestSpot, substituting the pool's configured macros
// plus two internal ones the reconciler always injects, per spec §4.5.2
// step 3 and original_source's _start_pool_instances.
package userdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PoolIDMacro and CycleTimeMacro are injected on every compile, overriding
// any pool-configured macro of the same name.
const (
	PoolIDMacro    = "EC2SPOTMANAGER_POOLID"
	CycleTimeMacro = "EC2SPOTMANAGER_CYCLETIME"
)

// tagOpen and tagClose delimit "@NAME@" placeholders in the template.
const tagOpen, tagClose = "@", "@"

// Compile substitutes every "@NAME@" placeholder in template with the
// matching entry from macros (merged with the two internal macros), and
// returns an error naming the first placeholder with no matching macro.
// Spec §4.5.2 requires an uncompilable userdata to raise a critical
// config-error and skip scale-up for the pool, so callers must treat a
// non-nil error as the same case as MissingParameters.
func Compile(template string, macros map[string]string, poolID int64, cycleInterval time.Duration) (string, error) {
	merged := make(map[string]string, len(macros)+2)
	for k, v := range macros {
		merged[k] = v
	}
	merged[PoolIDMacro] = strconv.FormatInt(poolID, 10)
	merged[CycleTimeMacro] = strconv.FormatInt(int64(cycleInterval.Seconds()), 10)

	var out strings.Builder
	rest := template
	for {
		start := strings.Index(rest, tagOpen)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		rest = rest[start+len(tagOpen):]

		end := strings.Index(rest, tagClose)
		if end < 0 {
			return "", fmt.Errorf("userdata: unterminated %q placeholder", tagOpen)
		}
		name := rest[:end]
		rest = rest[end+len(tagClose):]

		value, ok := merged[name]
		if !ok {
			return "", fmt.Errorf("userdata: no macro named %q", name)
		}
		out.WriteString(value)
	}

	return out.String(), nil
}
