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

// Package model holds the data contracts shared by every component of the
// reconciler: pools, their flattened configuration, instances, and status
// entries, per spec §3.
package model

import (
	"fmt"
	"time"

	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
)

// Pool is a declarative fleet specification plus its lifecycle state. The
// reconciler never creates or deletes pools; both happen out of band.
type Pool struct {
	ID         int64
	Name       string
	Config     Configuration
	Enabled    bool
	LastCycled *time.Time
}

// Configuration is a pool's already-flattened configuration, per spec §3.
// The inheritance/flattening mechanism that produces this lives outside
// this repo's scope.
type Configuration struct {
	Size              int
	CycleInterval     time.Duration
	AllowedRegions    []string
	InstanceTypes     []string // ordered; first acceptable wins selector ties
	MaxPricePerCore   float64
	KeyName           string
	ImageName         string
	SecurityGroups    []string
	Tags              map[string]string
	UserData          []byte
	UserDataMacros    map[string]string
	RawConfig         map[string]any
}

// IsCyclic reports whether the configuration refers to itself through a
// parent chain. A Configuration holds no parent reference, so there is no
// chain to walk: it always returns false and detects no cycle.
func (c Configuration) IsCyclic() bool {
	return false
}

// MissingParameters returns the names of required fields the configuration
// lacks. Reconciliation must not proceed while this is non-empty; the pool
// is frozen with a critical config-error instead (spec §3, §4.5 step 2).
func (c Configuration) MissingParameters() []string {
	var missing []string
	if c.Size <= 0 {
		missing = append(missing, "size")
	}
	if c.CycleInterval <= 0 {
		missing = append(missing, "cycle_interval")
	}
	if len(c.AllowedRegions) == 0 {
		missing = append(missing, "ec2_allowed_regions")
	}
	if len(c.InstanceTypes) == 0 {
		missing = append(missing, "ec2_instance_types")
	}
	if c.MaxPricePerCore <= 0 {
		missing = append(missing, "ec2_max_price")
	}
	if c.KeyName == "" {
		missing = append(missing, "ec2_key_name")
	}
	if c.ImageName == "" {
		missing = append(missing, "ec2_image_name")
	}
	for _, t := range c.InstanceTypes {
		if _, ok := CoresPerInstance[t]; !ok {
			missing = append(missing, fmt.Sprintf("ec2_instance_types: unknown type %q", t))
		}
	}
	for _, r := range c.AllowedRegions {
		if !Regions[r] {
			missing = append(missing, fmt.Sprintf("ec2_allowed_regions: unknown region %q", r))
		}
	}
	return missing
}

// Instance is a single spot request or spot instance owned by a pool,
// per spec §3.
type Instance struct {
	ID           int64
	PoolID       int64
	ProviderID   string // request-id until fulfilled, then instance-id
	Region       string
	Zone         string
	Hostname     string
	InstanceType string // e.g. "m5.xlarge"; used to key the blacklist
	Size         int    // cores; equals CoresPerInstance[InstanceType] at creation
	StatusCode   provider.StatusCode
	Created      time.Time
}

// IsRequested reports whether the instance is still an unfulfilled bid.
func (i Instance) IsRequested() bool {
	return i.StatusCode == provider.StatusRequested
}

// CountsTowardCapacity reports whether the instance should be counted in
// Σsize for spec §4.5 step 5 (requested, pending, or running).
func (i Instance) CountsTowardCapacity() bool {
	switch i.StatusCode {
	case provider.StatusRequested, provider.StatusPending, provider.StatusRunning:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the instance has reached a state that should
// be deleted from the store (spec §4.5 step 5, §4.6).
func (i Instance) IsTerminal() bool {
	return i.StatusCode == provider.StatusShuttingDown || i.StatusCode == provider.StatusTerminated
}

// StatusEntryType is the closed set of PoolStatusEntry kinds, per spec §3.
type StatusEntryType string

const (
	StatusPriceTooLow             StatusEntryType = "price-too-low"
	StatusConfigError             StatusEntryType = "config-error"
	StatusUnclassified            StatusEntryType = "unclassified"
	StatusMaxSpotCountExceeded    StatusEntryType = "max-spot-instance-count-exceeded"
	StatusTemporaryFailure        StatusEntryType = "temporary-failure"
)

// StatusEntry describes an out-of-band condition on a pool, per spec §3.
type StatusEntry struct {
	ID         int64
	PoolID     int64
	Type       StatusEntryType
	IsCritical bool
	Message    string
	Created    time.Time
}

// Deduplicated reports whether entries of this type are suppressed if one
// already exists for the pool, per spec §4.4.
func (t StatusEntryType) Deduplicated() bool {
	switch t {
	case StatusPriceTooLow, StatusTemporaryFailure, StatusMaxSpotCountExceeded:
		return true
	default:
		return false
	}
}
