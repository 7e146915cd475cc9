package internal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerMetrics(t *testing.T) {
	t.Parallel()

	wm := NewWorkerMetrics(nil)
	wm.tickInc("discovery")
	wm.itemsAdd("discovery", 3)
	wm.itemsAdd("discovery", 0)
	wm.itemsAdd("discovery", -1)
	wm.errorInc("discovery")

	assert.EqualValues(t, 3, wm.itemsGet("discovery"))
	assert.EqualValues(t, 0, wm.itemsGet("delivery"))
}

func TestWorkerMetricsRegisters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	wm := NewWorkerMetrics(reg)
	wm.tickInc("delivery")

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "cereal_worker_ticks")
}
