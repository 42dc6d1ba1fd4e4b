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

package provider

import (
	"errors"
	"strings"
)

// Kind classifies a Provider Adapter failure per spec §4.3 / §7.
type Kind int

const (
	KindUnclassified Kind = iota
	KindTransient
	KindQuotaExceeded
)

// Error wraps an underlying provider SDK error with a classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps a raw provider error into one of the three kinds spec §4.3
// recognizes, by substring match on the error message: QuotaExceeded by
// "MaxSpotInstanceCountExceeded", TransientFailure by "Service Unavailable"
// or a network/TLS-level failure, everything else Unclassified.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "MaxSpotInstanceCountExceeded"):
		return &Error{Kind: KindQuotaExceeded, Err: err}
	case strings.Contains(msg, "Service Unavailable"), isNetworkError(err):
		return &Error{Kind: KindTransient, Err: err}
	default:
		return &Error{Kind: KindUnclassified, Err: err}
	}
}

// isNetworkError reports whether err looks like a TLS or socket-level
// failure rather than an API-level rejection.
func isNetworkError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"connection refused", "connection reset", "no such host", "tls", "timeout", "i/o timeout"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a TransientFailure.
func IsTransient(err error) bool {
	var c *Error
	return errors.As(err, &c) && c.Kind == KindTransient
}

// IsQuotaExceeded reports whether err is a QuotaExceeded failure.
func IsQuotaExceeded(err error) bool {
	var c *Error
	return errors.As(err, &c) && c.Kind == KindQuotaExceeded
}
