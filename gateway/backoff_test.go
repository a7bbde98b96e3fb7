package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelay(t *testing.T) {
	g := &Gateway{backoff: 200 * time.Millisecond, maxBackoff: time.Second}

	req := &Request{}
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, g.delay(req))
	}
	require.Equal(t, []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, got)

	// each request starts from the base again
	require.Equal(t, 200*time.Millisecond, g.delay(&Request{}))
}

func TestDelay_Disabled(t *testing.T) {
	g := &Gateway{}
	req := &Request{}
	require.Zero(t, g.delay(req))
	require.Zero(t, g.delay(req))
	require.Nil(t, req.backoff)
}
