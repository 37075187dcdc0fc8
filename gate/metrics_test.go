package gate_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-authkit/gate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserverCountsEvaluations(t *testing.T) {
	reg := prometheus.NewRegistry()

	obs, err := gate.NewMetricsObserver(reg)
	require.NoError(t, err)

	g := gate.New(gate.WithObservers(obs))
	require.NoError(t, g.Register("posts.view", allowAll))

	ctx := context.Background()
	principal := testPrincipal{id: "u1"}

	g.Can(ctx, principal, "posts.view", nil)
	g.Can(ctx, principal, "posts.view", nil)
	g.Can(ctx, principal, "missing", nil)

	count, err := testutil.GatherAndCount(reg, "gate_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
