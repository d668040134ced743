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
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFile reads flag values from a TOML or YAML file, chosen by extension,
// and sets every flag in flagSet that was not given on the command line. Keys
// are flag names. It must be called after flagSet.Parse and before
// NewFromFlags.
func LoadFile(flagSet *flag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	values := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &values); err != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
	default:
		return fmt.Errorf("unknown config format %q for %q", ext, path)
	}

	explicit := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) {
		explicit[fl.Name] = true
	})

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if flagSet.Lookup(name) == nil {
			return fmt.Errorf("%q: unknown flag %q", path, name)
		}
		if explicit[name] {
			continue
		}
		switch v := values[name].(type) {
		case map[string]any, []any:
			return fmt.Errorf("%q: flag %q must be a scalar, got %T", path, name, v)
		default:
			if err := flagSet.Set(name, fmt.Sprint(v)); err != nil {
				return fmt.Errorf("%q: %w", path, err)
			}
		}
	}
	return nil
}
