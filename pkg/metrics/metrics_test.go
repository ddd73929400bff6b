package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { RegisterCollectors(reg) })

	SessionLogins.WithLabelValues("created").Inc()
	n, err := testutil.GatherAndCount(reg, "uikit_session_logins_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)

	// registering twice on the same registry is a programming error
	require.Panics(t, func() { RegisterCollectors(reg) })
}
