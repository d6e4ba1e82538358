package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })

	count, err := testutil.GatherAndCount(reg, "acectl_active_sessions", "acectl_stale_reports_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Collectors are package globals, a second registration is a programming error
	assert.Panics(t, func() { Register(reg) })
}
