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
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// toMetricFamily converts m to its Prometheus representation. Every field
// value combination becomes one sample labeled by field name.
func (m *Uint64Metric) toMetricFamily() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(prometheusName(m.name)),
		Help: proto.String(m.description),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for key := range m.fields {
		var labels []*dto.LabelPair
		for i, v := range m.fieldMapper.keyToMultiField(key) {
			labels = append(labels, &dto.LabelPair{
				Name:  proto.String(m.fieldMapper.fields[i].name),
				Value: proto.String(v),
			})
		}
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   labels,
			Counter: &dto.Counter{Value: proto.Float64(float64(m.fields[key].Load()))},
		})
	}
	return mf
}

// WritePrometheusText writes all registered metrics to w in the Prometheus
// text exposition format.
func WritePrometheusText(w io.Writer) error {
	for _, m := range snapshot() {
		if _, err := expfmt.MetricFamilyToText(w, m.toMetricFamily()); err != nil {
			return fmt.Errorf("writing metric %q: %w", m.name, err)
		}
	}
	return nil
}
