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

// Package cmd holds implementations of the rvos commands.
package cmd

import (
	"fmt"
	"strings"
)

// stringFlags can be used with string flags that appear multiple times.
type stringFlags []string

// String implements flag.Value.
func (s *stringFlags) String() string {
	return strings.Join(*s, ",")
}

// Get implements flag.Getter.
func (s *stringFlags) Get() any {
	return s
}

// GetArray returns the collected values.
func (s *stringFlags) GetArray() []string {
	return *s
}

// Set implements flag.Value.
func (s *stringFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("invalid flag value %q: want KEY=VALUE", v)
	}
	*s = append(*s, v)
	return nil
}
