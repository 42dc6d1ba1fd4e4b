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
	"context"
	"time"
)

// Client is the Provider Adapter: the thin façade over the cloud SDK the
// reconciler needs, per spec §4.3. One Client is bound to a single region;
// callers obtain one per region via a Dialer.
type Client interface {
	// ResolveImage returns the provider image id for a human-readable name.
	// Callers are expected to cache the result under key ami:<region>:<name>
	// with a 24-hour TTL; this call itself is uncached and may be slow.
	ResolveImage(ctx context.Context, name string) (string, error)

	// RequestSpot submits a spot bid for count instances at bidTotal
	// dollars/hour per instance, with the given fulfillment timeout.
	// Returns one request id per instance requested.
	RequestSpot(ctx context.Context, spec SpotRequestSpec, bidTotal float64, count int, timeout time.Duration) ([]string, error)

	// CheckSpotRequests polls the given spot request ids and, for any that
	// have been fulfilled, applies tags to the resulting instance.
	CheckSpotRequests(ctx context.Context, requestIDs []string, tags map[string]string) ([]Outcome, error)

	// Find returns provider instances matching filter.
	Find(ctx context.Context, filter Filter) ([]Instance, error)

	// Terminate best-effort terminates the given instances.
	Terminate(ctx context.Context, instanceIDs []string) error
}

// Dialer constructs a region-bound Client, the analogue of spec §4.3's
// connect(region, creds). Implementations fail with a TransientFailure on
// network/TLS errors and Unclassified otherwise.
type Dialer interface {
	Connect(ctx context.Context, region string) (Client, error)
}

// ClientConfig configures Dialer construction.
type ClientConfig struct {
	// MaxRetries is the maximum number of retries for provider API calls.
	MaxRetries int

	// RetryDelay is the initial delay between retries (exponential backoff).
	RetryDelay time.Duration

	// HTTPTimeout is the timeout for HTTP requests to the provider API.
	HTTPTimeout time.Duration
}

// NewDialer creates a Dialer for production use against the real AWS API.
func NewDialer(config ClientConfig) (Dialer, error) {
	return NewDialerWithEndpoint(config, "")
}

// NewDialerWithEndpoint creates a Dialer with a custom endpoint URL, for
// testing against LocalStack. Pass "" for production use.
func NewDialerWithEndpoint(config ClientConfig, endpointURL string) (Dialer, error) {
	return NewRealDialer(config, endpointURL)
}
