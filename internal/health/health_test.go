package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func staticProbe(name string, ok bool) Prober {
	return ProberFunc(func(_ context.Context) ProbeResult {
		r := ProbeResult{Name: name, OK: ok}
		if !ok {
			r.Error = "down"
		}
		return r
	})
}

func TestChecker_RunCollectsAll(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Add("postgres", staticProbe("pg", true))
	c.Add("redis", staticProbe("redis", false))

	results := c.Run(context.Background())

	assert.Len(t, results, 2)
	assert.True(t, results["postgres"].OK)
	assert.False(t, results["redis"].OK)
	assert.Equal(t, "down", results["redis"].Error)
	assert.False(t, AllOK(results))
}

func TestChecker_RunsConcurrently(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	slow := ProberFunc(func(_ context.Context) ProbeResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return ProbeResult{OK: true}
	})

	c := NewChecker()
	c.Add("a", slow)
	c.Add("b", slow)
	c.Add("c", slow)

	results := c.Run(context.Background())
	assert.True(t, AllOK(results))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestChecker_Names(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Add("redis", staticProbe("redis", true))
	c.Add("nats", staticProbe("nats", true))
	c.Add("redis", staticProbe("redis", false))

	assert.Equal(t, []string{"nats", "redis"}, c.Names())
}

func TestAllOK_Empty(t *testing.T) {
	t.Parallel()
	assert.True(t, AllOK(nil))
}
