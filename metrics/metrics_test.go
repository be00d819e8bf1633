//
//  Copyright 2024 The AVFS authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//  	http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
	"github.com/avfs/mungefs/metrics"
	"github.com/avfs/mungefs/test"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	table := fault.NewTable()

	c, err := metrics.NewCollector(reg, table)
	require.NoError(t, err)

	_, err = table.Set([]string{"read", "write"}, mungefs.Fault{ErrNo: 5, DelayUs: 1, CorruptData: true})
	require.NoError(t, err)

	e := fault.NewEvaluator(table, fault.WithObserver(c), fault.WithSleep(test.NoSleep))
	e.Check(context.Background(), "/a", mungefs.OpRead)
	e.Check(context.Background(), "/a", mungefs.OpRead)
	e.Check(context.Background(), "/a", mungefs.OpOpen)

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP mungefs_faults_configured Number of operations having a fault.
# TYPE mungefs_faults_configured gauge
mungefs_faults_configured 2
# HELP mungefs_fault_evaluations_total Number of operations evaluated against a configured fault.
# TYPE mungefs_fault_evaluations_total counter
mungefs_fault_evaluations_total{op="read"} 2
`), "mungefs_faults_configured", "mungefs_fault_evaluations_total")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "mungefs_faults_injected_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "one series for each of error, delay and corrupt")
}

func TestCollectorRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	table := fault.NewTable()

	_, err := metrics.NewCollector(reg, table)
	require.NoError(t, err)

	_, err = metrics.NewCollector(reg, table)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := metrics.NewCollector(reg, fault.NewTable())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mungefs_faults_configured 0")
}
