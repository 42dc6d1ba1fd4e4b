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

package config

// DefaultConfigPath is where the process looks for its configuration file
// when none is given on the command line.
const DefaultConfigPath = "/etc/spotmanagerd/config.yaml"

// EnvPrefix is the prefix Viper binds environment variable overrides under
// (e.g. SPOTMANAGERD_STORE_DSN overrides storeDSN).
const EnvPrefix = "SPOTMANAGERD"
