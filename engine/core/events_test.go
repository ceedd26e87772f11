package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSystemFiresInRegistrationOrder(t *testing.T) {
	es := NewEventSystem()
	var got []int32

	a, b := "a", "b"
	assert.True(t, es.Register(EVENT_CODE_INSTANCE_RELOCATED, a, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, data.Data.I32[0])
		return false
	}))
	assert.True(t, es.Register(EVENT_CODE_INSTANCE_RELOCATED, b, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, data.Data.I32[1])
		return true
	}))
	// duplicate listener
	assert.False(t, es.Register(EVENT_CODE_INSTANCE_RELOCATED, a, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }))

	ctx := EventContext{}
	ctx.Data.I32[0] = 2
	ctx.Data.I32[1] = 1
	assert.True(t, es.Fire(EVENT_CODE_INSTANCE_RELOCATED, nil, ctx))
	assert.Equal(t, []int32{2, 1}, got)

	assert.True(t, es.Unregister(EVENT_CODE_INSTANCE_RELOCATED, b))
	assert.False(t, es.Unregister(EVENT_CODE_INSTANCE_RELOCATED, b))
	assert.False(t, es.Fire(EVENT_CODE_INSTANCE_RELOCATED, nil, ctx))
	assert.False(t, es.Fire(EVENT_CODE_INSTANCE_ADDED, nil, ctx))
}

func TestNilEventSystemIgnoresFire(t *testing.T) {
	var es *EventSystem
	assert.False(t, es.Fire(EVENT_CODE_INSTANCE_ADDED, nil, EventContext{}))
}

func TestIdentifierPoolReusesSlots(t *testing.T) {
	p := NewIdentifierPool(4)
	a := p.Acquire("a")
	b := p.Acquire("b")
	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)

	assert.NoError(t, p.Release(a))
	assert.Error(t, p.Release(a))
	assert.Error(t, p.Release(42))

	c := p.Acquire("c")
	assert.Equal(t, a, c)
	assert.Equal(t, "c", p.Owner(c))
	assert.Equal(t, 2, p.InUse())
}

func TestEnsureReturnsCondition(t *testing.T) {
	if DebugAssertions {
		t.Skip("ensure panics in debug builds")
	}
	assert.True(t, Ensure(true, "never logged"))
	assert.False(t, Ensure(false, "index %d out of range", 7))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordReplay(10, 2)
	m.RecordReplay(5, 0)
	m.RecordUpload(64)
	replayed, skipped := m.Replay()
	assert.Equal(t, uint64(15), replayed)
	assert.Equal(t, uint64(2), skipped)
	uploads, bytes := m.Uploads()
	assert.Equal(t, uint64(1), uploads)
	assert.Equal(t, uint64(64), bytes)

	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	_, avg := m.Frame()
	assert.InDelta(t, 16.0, avg, 0.001)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel(" warn "))
	assert.Equal(t, InfoLevel, ParseLogLevel("nonsense"))
}
