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

// Package metric provides primitives for collecting metrics.
package metric

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"rvos.dev/rvos/pkg/log"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInitializationDone indicates that the caller tried to create a
	// new metric after initialization.
	ErrInitializationDone = errors.New("metric cannot be created after initialization is complete")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrTooManyFieldCombinations indicates that the number of unique
	// combinations of fields is too large to support.
	ErrTooManyFieldCombinations = errors.New("metric has too many combinations of allowed field values")
)

// maxFieldCombinations bounds the number of counters a single metric may
// carry.
const maxFieldCombinations = 1024

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{name: name, allowedValues: allowedValues}
}

// fieldMapper maps field value combinations to indexes into a flat counter
// slice, in mixed radix with the first field most significant.
type fieldMapper struct {
	fields []Field
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	n := 1
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return fieldMapper{}, ErrFieldHasNoAllowedValues
		}
		n *= len(f.allowedValues)
		if n > maxFieldCombinations {
			return fieldMapper{}, ErrTooManyFieldCombinations
		}
	}
	return fieldMapper{fields: fields}, nil
}

func (m fieldMapper) numKeys() int {
	n := 1
	for _, f := range m.fields {
		n *= len(f.allowedValues)
	}
	return n
}

// lookup returns the key for the given field values. It panics if the wrong
// number of values is given or a value is not allowed.
func (m fieldMapper) lookup(fieldValues ...string) int {
	if len(fieldValues) != len(m.fields) {
		panic(fmt.Sprintf("invalid field lookup depth: got %d, wanted %d", len(fieldValues), len(m.fields)))
	}
	key := 0
	for i, f := range m.fields {
		idx := -1
		for j, v := range f.allowedValues {
			if v == fieldValues[i] {
				idx = j
				break
			}
		}
		if idx < 0 {
			panic(fmt.Sprintf("invalid value %q for field %q", fieldValues[i], f.name))
		}
		key = key*len(f.allowedValues) + idx
	}
	return key
}

// keyToMultiField is the inverse of lookup.
func (m fieldMapper) keyToMultiField(key int) []string {
	values := make([]string, len(m.fields))
	for i := len(m.fields) - 1; i >= 0; i-- {
		n := len(m.fields[i].allowedValues)
		values[i] = m.fields[i].allowedValues[key%n]
		key /= n
	}
	return values
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored.
type Uint64Metric struct {
	name        string
	description string
	sync        bool

	// fields is the map of field-value combination index keys to counters.
	fields []atomic.Uint64

	// fieldMapper is used to generate index keys for the fields array (above)
	// based on field value combinations, and vice-versa.
	fieldMapper fieldMapper
}

// metricSet holds registered metrics.
type metricSet struct {
	mu          sync.Mutex
	initialized bool
	disabled    bool
	metrics     map[string]*Uint64Metric
}

func makeMetricSet() *metricSet {
	return &metricSet{metrics: make(map[string]*Uint64Metric)}
}

// allMetrics are the registered metrics.
var allMetrics = makeMetricSet()

// Initialize marks all metrics as registered. Further registration fails with
// ErrInitializationDone.
//
// Precondition:
//   - All metrics are registered.
//   - Initialize/Disable has not been called.
func Initialize() error {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.initialized {
		return errors.New("metric.Initialize called after metric.Initialize or metric.Disable")
	}
	allMetrics.initialized = true
	log.Debugf("Metrics initialized: %d registered", len(allMetrics.metrics))
	return nil
}

// Disable closes registration and disables export. Counters keep working so
// callers need not check.
func Disable() error {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.initialized {
		return errors.New("metric.Disable called after metric.Initialize or metric.Disable")
	}
	allMetrics.initialized = true
	allMetrics.disabled = true
	return nil
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name string, sync bool, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.initialized {
		return nil, ErrInitializationDone
	}
	if _, ok := allMetrics.metrics[name]; ok {
		return nil, ErrNameInUse
	}
	m := &Uint64Metric{
		name:        name,
		description: description,
		sync:        sync,
		fieldMapper: f,
		fields:      make([]atomic.Uint64, f.numKeys()),
	}
	allMetrics.metrics[name] = m
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name string, sync bool, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, sync, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Name returns the registered name.
func (m *Uint64Metric) Name() string {
	return m.name
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.fields[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(v)
}

// snapshot returns the registered metrics sorted by name, or nil if metrics
// are disabled.
func snapshot() []*Uint64Metric {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.disabled {
		return nil
	}
	ms := make([]*Uint64Metric, 0, len(allMetrics.metrics))
	for _, m := range allMetrics.metrics {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })
	return ms
}

// prometheusName converts a "/kernel/threads_created" style name to a
// Prometheus metric name.
func prometheusName(name string) string {
	return "rvos_" + strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
}
