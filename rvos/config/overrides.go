// Copyright 2026 The rvos Authors.
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

import (
	"flag"
	"fmt"
	"sort"
)

// ApplyOverrides returns a copy of c with the given flag values applied.
// Flags that were set explicitly on flagSet win over overrides.
func (c *Config) ApplyOverrides(flagSet *flag.FlagSet, overrides map[string]string) (*Config, error) {
	explicit := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) {
		explicit[fl.Name] = true
	})

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	// Override mutates the registered flag values, so work on a private set.
	tmp := flag.NewFlagSet("overrides", flag.ContinueOnError)
	RegisterFlags(tmp)

	conf := c.Copy()
	for _, name := range names {
		if explicit[name] {
			continue
		}
		if err := conf.Override(tmp, name, overrides[name]); err != nil {
			return nil, fmt.Errorf("workload override: %w", err)
		}
	}
	return conf, nil
}
