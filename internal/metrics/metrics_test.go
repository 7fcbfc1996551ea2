package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	counter := operationsTotal.WithLabelValues("nested_set", "move", "integrity")
	before := testutil.ToFloat64(counter)

	ObserveOperation("nested_set", "move", "integrity", 3*time.Millisecond)
	ObserveOperation("nested_set", "move", "integrity", time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestCacheLookups(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookups.WithLabelValues("miss"))

	CacheHit()
	CacheMiss()
	CacheMiss()

	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(cacheLookups.WithLabelValues("miss")))
}

func TestObserveShiftRegistersStep(t *testing.T) {
	ObserveShift("park", 12)
	assert.Equal(t, 1, testutil.CollectAndCount(rowsShifted, "orgtree_nested_set_rows_shifted"))
}
