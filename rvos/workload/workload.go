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

// Package workload describes what the kernel runs: the executable images
// available to it and the init program it boots.
//
// Workloads are TOML or YAML files:
//
//	init = "/bin/init"
//	args = ["/bin/init", "hello"]
//
//	[kernel]
//	timeslice = "100"
//
//	[[images]]
//	name = "/bin/init"
//	text = '''
//	  push_string a1, "hello\n"
//	  syscall write 1 a1 6
//	  syscall exit_group 0
//	'''
package workload

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/kernel"
	"rvos.dev/rvos/pkg/sentry/loader"
)

// Image describes one executable.
type Image struct {
	// Name is the path the image is registered under.
	Name string `toml:"name" yaml:"name"`

	// Entry is the address the text is based at. If zero, it is taken from
	// the ELF header, or the loader picks a default.
	Entry uint64 `toml:"entry" yaml:"entry"`

	// ELF optionally names a static riscv64 ELF file providing the memory
	// layout. Relative paths are resolved against the workload file.
	ELF string `toml:"elf" yaml:"elf"`

	// Script is the text of an interpreter script ("#!interp arg").
	Script string `toml:"script" yaml:"script"`

	// Text is the program, in the syntax accepted by Assemble.
	Text string `toml:"text" yaml:"text"`
}

// Workload is a parsed workload file.
type Workload struct {
	// Init is the image the root process runs.
	Init string `toml:"init" yaml:"init"`

	// Args is the root process's argument vector. It defaults to [Init].
	Args []string `toml:"args" yaml:"args"`

	// Env is the root process's environment.
	Env []string `toml:"env" yaml:"env"`

	// Kernel overrides command line flags that were not set explicitly.
	Kernel map[string]string `toml:"kernel" yaml:"kernel"`

	Images []Image `toml:"images" yaml:"images"`

	// dir resolves relative ELF paths.
	dir string
}

// Format is a workload file encoding.
type Format int

// Supported formats.
const (
	TOML Format = iota
	YAML
)

// FormatOf picks the format from a file name's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml", ".json":
		return YAML, nil
	default:
		return 0, fmt.Errorf("unknown workload format for %q: want .toml, .yaml or .yml", path)
	}
}

// Load reads and parses the workload file at path.
func Load(path string) (*Workload, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	w.dir = filepath.Dir(path)
	return w, nil
}

// Parse parses a workload.
func Parse(data []byte, format Format) (*Workload, error) {
	w := &Workload{}
	switch format {
	case TOML:
		md, err := toml.Decode(string(data), w)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys %v", undecoded)
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(w); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %d", format)
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	if len(w.Args) == 0 {
		w.Args = []string{w.Init}
	}
	return w, nil
}

func (w *Workload) validate() error {
	if w.Init == "" {
		return fmt.Errorf("no init image")
	}
	seen := make(map[string]bool)
	found := false
	for _, img := range w.Images {
		if img.Name == "" {
			return fmt.Errorf("image with no name")
		}
		if seen[img.Name] {
			return fmt.Errorf("duplicate image %q", img.Name)
		}
		seen[img.Name] = true
		found = found || img.Name == w.Init
		if img.Script != "" && (img.Text != "" || img.ELF != "") {
			return fmt.Errorf("image %q: a script cannot have text or an ELF", img.Name)
		}
	}
	if !found {
		return fmt.Errorf("init image %q not defined", w.Init)
	}
	return nil
}

// Build builds loadable images, resolving syscall names through table.
func (w *Workload) Build(table *kernel.SyscallTable) ([]*loader.Image, error) {
	imgs := make([]*loader.Image, 0, len(w.Images))
	for i := range w.Images {
		img, err := w.build(&w.Images[i], table)
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", w.Images[i].Name, err)
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}

func (w *Workload) build(desc *Image, table *kernel.SyscallTable) (*loader.Image, error) {
	img := &loader.Image{Name: desc.Name}
	if desc.Script != "" {
		img.Script = []byte(desc.Script)
		return img, nil
	}

	entry := desc.Entry
	if desc.ELF != "" {
		path := desc.ELF
		if !filepath.IsAbs(path) {
			path = filepath.Join(w.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		f, err := elf.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("reading ELF %q: %w", path, err)
		}
		if entry == 0 {
			entry = f.Entry
		}
		img.ELF = data
	}

	prog, err := Assemble(desc.Text, entry, table)
	if err != nil {
		return nil, err
	}
	log.Debugf("Assembled %q: %d instructions at %#x", desc.Name, len(prog.Ops), prog.Entry)
	img.Program = prog
	return img, nil
}
