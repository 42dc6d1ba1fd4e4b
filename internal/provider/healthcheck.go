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
	"fmt"
	"net/http"
)

// HealthChecker validates that every allowed region's credentials resolve.
// It implements controller-runtime's healthz.Checker signature
// (func(*http.Request) error) and is used as a readiness probe so the
// process doesn't mark itself ready until every region it reconciles
// pools in is actually reachable.
type HealthChecker struct {
	validator Validator
	regions   []string
}

// NewHealthChecker creates a health checker over the given regions.
func NewHealthChecker(validator Validator, regions []string) *HealthChecker {
	return &HealthChecker{validator: validator, regions: regions}
}

// Name returns the name of this health checker for logging purposes.
func (h *HealthChecker) Name() string {
	return "provider-account-access"
}

// Check validates that credentials resolve in every configured region.
// Temporary provider failures should not cause the process to be killed,
// but they should hold it out of readiness until access is restored.
func (h *HealthChecker) Check(req *http.Request) error {
	ctx := req.Context()

	if len(h.regions) == 0 {
		return nil
	}

	var failed []string
	for _, region := range h.regions {
		if err := h.validator.ValidateAccountAccess(ctx, region); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", region, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to validate access to %d/%d regions: %v", len(failed), len(h.regions), failed)
	}
	return nil
}
