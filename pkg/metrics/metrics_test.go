package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	// 重复注册不会 panic。
	Register(r)
	assert.Same(t, r, GetRegisterer())

	ChannelFastForwards.WithLabelValues("frame").Inc()
	n, err := testutil.GatherAndCount(r, "kvmfr_channel_fast_forward_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
