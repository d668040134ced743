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

package metric

import (
	"bytes"
	"testing"

	"github.com/prometheus/common/expfmt"
)

// reset clears all global state in the metric package.
func reset() {
	allMetrics = makeMetricSet()
}

const (
	fooDescription     = "Foo!"
	barDescription     = "Bar Baz"
	counterDescription = "Counter"
)

func TestInitialize(t *testing.T) {
	defer reset()

	if _, err := NewUint64Metric("/foo", false, fooDescription); err != nil {
		t.Fatalf("NewUint64Metric got err %v want nil", err)
	}
	if _, err := NewUint64Metric("/foo", false, fooDescription); err != ErrNameInUse {
		t.Fatalf("NewUint64Metric duplicate got err %v want %v", err, ErrNameInUse)
	}
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize(): %s", err)
	}
	if _, err := NewUint64Metric("/bar", true, barDescription); err != ErrInitializationDone {
		t.Fatalf("NewUint64Metric after Initialize got err %v want %v", err, ErrInitializationDone)
	}
	if err := Initialize(); err == nil {
		t.Fatalf("second Initialize() succeeded")
	}
}

func TestFields(t *testing.T) {
	defer reset()

	if _, err := NewUint64Metric("/empty", false, counterDescription, NewField("f", nil)); err != ErrFieldHasNoAllowedValues {
		t.Errorf("NewUint64Metric with empty field got err %v want %v", err, ErrFieldHasNoAllowedValues)
	}

	m := MustCreateNewUint64Metric("/counter", false, counterDescription,
		NewField("cause", []string{"timer", "syscall"}),
		NewField("kind", []string{"a", "b", "c"}))
	m.Increment("syscall", "b")
	m.IncrementBy(4, "timer", "c")
	m.Increment("syscall", "b")

	if got := m.Value("syscall", "b"); got != 2 {
		t.Errorf("Value(syscall, b) got %d want 2", got)
	}
	if got := m.Value("timer", "c"); got != 4 {
		t.Errorf("Value(timer, c) got %d want 4", got)
	}
	if got := m.Value("timer", "a"); got != 0 {
		t.Errorf("Value(timer, a) got %d want 0", got)
	}
	for key := 0; key < m.fieldMapper.numKeys(); key++ {
		if got := m.fieldMapper.lookup(m.fieldMapper.keyToMultiField(key)...); got != key {
			t.Errorf("lookup(keyToMultiField(%d)) got %d", key, got)
		}
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Increment with a disallowed value did not panic")
		}
	}()
	m.Increment("bogus", "a")
}

func TestWritePrometheusText(t *testing.T) {
	defer reset()

	plain := MustCreateNewUint64Metric("/kernel/ticks", false, fooDescription)
	fielded := MustCreateNewUint64Metric("/kernel/traps", false, barDescription,
		NewField("cause", []string{"ecall", "timer"}))
	plain.IncrementBy(7)
	fielded.Increment("timer")

	var buf bytes.Buffer
	if err := WritePrometheusText(&buf); err != nil {
		t.Fatalf("WritePrometheusText: %v", err)
	}
	families, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("TextToMetricFamilies: %v", err)
	}

	ticks, ok := families["rvos_kernel_ticks"]
	if !ok {
		t.Fatalf("rvos_kernel_ticks missing from %v", families)
	}
	if got := ticks.GetMetric()[0].GetCounter().GetValue(); got != 7 {
		t.Errorf("rvos_kernel_ticks got %v want 7", got)
	}
	if got := ticks.GetHelp(); got != fooDescription {
		t.Errorf("rvos_kernel_ticks help got %q want %q", got, fooDescription)
	}

	traps, ok := families["rvos_kernel_traps"]
	if !ok {
		t.Fatalf("rvos_kernel_traps missing from %v", families)
	}
	values := make(map[string]float64)
	for _, m := range traps.GetMetric() {
		values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if values["timer"] != 1 || values["ecall"] != 0 || len(values) != 2 {
		t.Errorf("rvos_kernel_traps samples got %v", values)
	}
}

func TestDisable(t *testing.T) {
	defer reset()

	MustCreateNewUint64Metric("/foo", false, fooDescription).Increment()
	if err := Disable(); err != nil {
		t.Fatalf("Disable(): %s", err)
	}
	var buf bytes.Buffer
	if err := WritePrometheusText(&buf); err != nil {
		t.Fatalf("WritePrometheusText: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("disabled metrics exported %q", buf.String())
	}
}
