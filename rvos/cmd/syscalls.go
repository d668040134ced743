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

package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
	arch   string
}

// CompatibilityInfo maps architecture to its compatibility doc.
type CompatibilityInfo map[string]ArchInfo

// ArchInfo is compatibility doc for an architecture.
type ArchInfo struct {
	// Syscalls maps syscall number for the architecture to the doc.
	Syscalls map[uintptr]SyscallDoc `json:"syscalls"`
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Name string `json:"name"`
	num  uintptr

	Support string `json:"support"`
	Note    string `json:"note,omitempty"`
}

type outputFunc func(io.Writer, CompatibilityInfo) error

var (
	// The string name to use for printing compatibility for all architectures.
	archAll = "all"

	// A map of output type names to output functions.
	outputMap = map[string]outputFunc{
		"table": outputTable,
		"json":  outputJSON,
		"csv":   outputCSV,
	}
)

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print compatibility information for syscalls."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] - Print compatibility information for syscalls.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, csv, json).")
	f.StringVar(&s.arch, "arch", archAll, "The CPU architecture (e.g. riscv64).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		Fatalf("Unsupported output format %q", s.output)
	}

	info, err := getCompatibilityInfo(kernel.SyscallTables(), s.arch)
	if err != nil {
		Fatalf("%v", err)
	}
	if err := out(os.Stdout, info); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// getCompatibilityInfo returns compatibility info for the given architecture
// name, or for every table if it is archAll.
func getCompatibilityInfo(tables []*kernel.SyscallTable, archName string) (CompatibilityInfo, error) {
	info := make(CompatibilityInfo)
	for _, t := range tables {
		if archName == archAll || archName == t.Arch {
			info[t.Arch] = getArchInfo(t)
		}
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("syscall table for %s not found", archName)
	}
	return info, nil
}

// getArchInfo returns compatibility info for a specific table.
func getArchInfo(t *kernel.SyscallTable) ArchInfo {
	info := ArchInfo{Syscalls: make(map[uintptr]SyscallDoc)}
	for num, sc := range t.Table {
		info.Syscalls[num] = SyscallDoc{
			Name:    sc.Name,
			num:     num,
			Support: sc.SupportLevel.String(),
			Note:    sc.Note,
		}
	}
	return info
}

// sortedArchs returns the architectures in info in a stable order.
func sortedArchs(info CompatibilityInfo) []string {
	archs := make([]string, 0, len(info))
	for name := range info {
		archs = append(archs, name)
	}
	sort.Strings(archs)
	return archs
}

func sortedCalls(archInfo ArchInfo) []SyscallDoc {
	calls := make([]SyscallDoc, 0, len(archInfo.Syscalls))
	for _, sc := range archInfo.Syscalls {
		calls = append(calls, sc)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].num < calls[j].num
	})
	return calls
}

// outputTable outputs the syscall info in tabular format.
func outputTable(w io.Writer, info CompatibilityInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, archName := range sortedArchs(info) {
		// Print the arch.
		fmt.Fprintf(w, "%s:\n\n", archName)

		// Write the header.
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", "NUM", "NAME", "SUPPORT", "NOTE"); err != nil {
			return err
		}

		// Write each syscall entry.
		for _, sc := range sortedCalls(info[archName]) {
			_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				strconv.FormatInt(int64(sc.num), 10),
				sc.Name,
				sc.Support,
				sc.Note,
			)
			if err != nil {
				return err
			}
		}

		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// outputJSON outputs the syscall info in JSON format.
func outputJSON(w io.Writer, info CompatibilityInfo) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(info)
}

// outputCSV outputs the syscall info in tabular format.
func outputCSV(w io.Writer, info CompatibilityInfo) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write([]string{"arch", "num", "name", "support", "note"}); err != nil {
		return err
	}
	for _, archName := range sortedArchs(info) {
		for _, sc := range sortedCalls(info[archName]) {
			row := []string{
				archName,
				strconv.FormatInt(int64(sc.num), 10),
				sc.Name,
				sc.Support,
				sc.Note,
			}
			if err := csvWriter.Write(row); err != nil {
				return err
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
