/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsEmitter(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	emitter := NewPrometheusMetricsEmitter("", "/debug/metrics", mux)

	w := emitter.WithTags("priority-manager")
	require.NoError(t, w.StoreInt64("applied", 2, MetricTypeNameCount))
	require.NoError(t, w.StoreInt64("applied", 3, MetricTypeNameCount))
	require.NoError(t, w.StoreFloat64("load.level", 0.5, MetricTypeNameRaw, MetricTag{Key: "category", Val: "normal"}))
	require.NoError(t, w.StoreFloat64("load.level", 0.7, MetricTypeNameRaw, MetricTag{Key: "category", Val: "normal"}))
	require.NoError(t, w.StoreInt64("in_flight", 1, MetricTypeNameUpDownCount))
	require.NoError(t, w.StoreInt64("in_flight", -1, MetricTypeNameUpDownCount))

	require.Error(t, w.StoreInt64("applied", -1, MetricTypeNameCount))
	require.Error(t, w.StoreInt64("applied", 1, MetricTypeNameRaw))
	require.Error(t, emitter.StoreInt64("applied", 1, MetricTypeNameCount))

	count, err := testutil.GatherAndCount(emitter.Gatherer())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `smoothtask_applied{emit_unit="priority-manager"} 5`), body)
	assert.True(t, strings.Contains(body, `smoothtask_load_level{category="normal",emit_unit="priority-manager"} 0.7`), body)
	assert.True(t, strings.Contains(body, `smoothtask_in_flight{emit_unit="priority-manager"} 0`), body)
}

func TestMetricTagWrapper(t *testing.T) {
	t.Parallel()

	base := &MetricTagWrapper{MetricEmitter: DummyMetrics{}}
	w1 := base.WithTags("unit-a", MetricTag{Key: "k", Val: "1"}).(*MetricTagWrapper)
	w2 := w1.WithTags("unit-b", MetricTag{Key: "k", Val: "2"}, MetricTag{Key: "x", Val: "y"}).(*MetricTagWrapper)

	assert.Equal(t, []MetricTag{{Key: "k", Val: "1"}}, w1.commonTags)
	assert.Equal(t, "unit-a", w1.unitTag.Val)
	assert.Equal(t, []MetricTag{{Key: "k", Val: "2"}, {Key: "x", Val: "y"}}, w2.commonTags)
	assert.Equal(t, "unit-b", w2.unitTag.Val)

	merged := w2.mergeTags([]MetricTag{{Key: "pid", Val: "1"}})
	assert.Equal(t, []MetricTag{{Key: "pid", Val: "1"}, {Key: "k", Val: "2"}, {Key: "x", Val: "y"}, {Key: unitTagKey, Val: "unit-b"}}, merged)
}
