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
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Validator checks that a configured AWS account's credentials actually
// resolve. The process uses it only through HealthChecker, so a
// misconfigured account shows up as a failing /readyz probe; startup and
// pool ticks do not wait on it.
type Validator interface {
	ValidateAccountAccess(ctx context.Context, region string) error
}

// AccountValidator implements Validator using STS GetCallerIdentity, the
// cheapest read-only call that proves a credential chain resolves.
type AccountValidator struct{}

// NewAccountValidator creates an AccountValidator.
func NewAccountValidator() *AccountValidator {
	return &AccountValidator{}
}

// ValidateAccountAccess loads the default credential chain for region and
// calls GetCallerIdentity.
// coverage:ignore - requires real AWS credentials; no test in this repo calls it
func (v *AccountValidator) ValidateAccountAccess(ctx context.Context, region string) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("loading credentials for region %s: %w", region, err)
	}

	client := sts.NewFromConfig(cfg)
	if _, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return fmt.Errorf("validating account access in region %s: %w", region, err)
	}
	return nil
}
