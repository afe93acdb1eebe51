package s3store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/contentstore/internal/content"
	"github.com/koustreak/contentstore/internal/datastore"
	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of the named counter whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s := newTestStore(t, testConfig(), WithMetrics(reg))
	s.mem.FailNext(memory.OpPut, errs.New(errs.ErrKindConnectionFailed, "EOF"))

	uid, err := s.Write(ctx, content.NewItem([]byte("x"), "egg.png", nil), datastore.WriteOptions{})
	require.NoError(t, err)
	_, _, err = s.Read(ctx, uid)
	require.NoError(t, err)
	s.mem.FailNext(memory.OpDelete, errs.New(errs.ErrKindPermissionDenied, "AccessDenied"))
	require.Error(t, s.Destroy(ctx, uid))

	ops := "contentstore_s3store_operations_total"
	assert.Equal(t, 1.0, counterValue(t, reg, ops, map[string]string{"operation": opWrite, "outcome": outcomeOK, "bucket": testBucket}))
	assert.Equal(t, 1.0, counterValue(t, reg, ops, map[string]string{"operation": opRead, "outcome": outcomeOK}))
	assert.Equal(t, 1.0, counterValue(t, reg, ops, map[string]string{"operation": opDestroy, "outcome": outcomeError}))
	assert.Equal(t, 1.0, counterValue(t, reg, "contentstore_s3store_retries_total", map[string]string{"operation": opWrite}))
}

func TestMetrics_SharedAcrossStores(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newTestStore(t, testConfig(), WithMetrics(reg))
	b := newTestStore(t, testConfig(), WithMetrics(reg))
	assert.Same(t, a.metrics.operations, b.metrics.operations)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *storeMetrics
	assert.NotPanics(t, func() {
		m.recordRetry(opWrite)
	})
}
