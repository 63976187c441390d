// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/swarmcore/pkg/capability"
	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/spatial"
)

func newCap(t *testing.T, name string) *capability.Capability {
	t.Helper()
	c, err := capability.New(identity.NewAgentId(), name, identity.SystemClock)
	require.NoError(t, err)
	return c
}

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64   { return c.ms }
func (c *fakeClock) Now() time.Time { return time.UnixMilli(c.ms) }

func newCapWithClock(t *testing.T, name string, clock identity.Clock) *capability.Capability {
	t.Helper()
	c, err := capability.New(identity.NewAgentId(), name, clock)
	require.NoError(t, err)
	return c
}

func TestRegister_DuplicateFails(t *testing.T) {
	r := New()
	c := newCap(t, "alice")
	require.NoError(t, r.Register(c))
	assert.Error(t, r.Register(c))
}

func TestRegister_NilFails(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(nil))
}

func TestRegisterLookup_ByIdAndName(t *testing.T) {
	r := New()
	c := newCap(t, "Alice")
	require.NoError(t, r.Register(c))

	byID, ok := r.Get(c.AgentID())
	assert.True(t, ok)
	assert.Same(t, c, byID)

	byName, ok := r.GetByName("alice")
	assert.True(t, ok)
	assert.Same(t, c, byName)
}

func TestUnregisterByName_ClearsBothMaps(t *testing.T) {
	r := New()
	c := newCap(t, "Bob")
	require.NoError(t, r.Register(c))

	removed, ok := r.UnregisterByName("BOB")
	assert.True(t, ok)
	assert.Same(t, c, removed)

	_, ok = r.Get(c.AgentID())
	assert.False(t, ok)
	_, ok = r.GetByName("bob")
	assert.False(t, ok)
}

func TestUnregister_UnknownReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.Unregister(identity.NewAgentId())
	assert.False(t, ok)
}

type recordingListener struct {
	NoopListener
	registered   []identity.AgentId
	unregistered []identity.AgentId
}

func (l *recordingListener) OnAgentRegistered(c *capability.Capability) {
	l.registered = append(l.registered, c.AgentID())
}
func (l *recordingListener) OnAgentUnregistered(c *capability.Capability) {
	l.unregistered = append(l.unregistered, c.AgentID())
}

func TestListeners_NotifiedAndIsolated(t *testing.T) {
	r := New()
	rec := &recordingListener{}
	r.AddListener(rec)
	r.AddListener(panicListener{})

	c := newCap(t, "carol")
	require.NoError(t, r.Register(c))
	r.Unregister(c.AgentID())

	assert.Equal(t, []identity.AgentId{c.AgentID()}, rec.registered)
	assert.Equal(t, []identity.AgentId{c.AgentID()}, rec.unregistered)
}

type panicListener struct{ NoopListener }

func (panicListener) OnAgentRegistered(*capability.Capability)   { panic("boom") }
func (panicListener) OnAgentUnregistered(*capability.Capability) { panic("boom") }

func TestFindCapableAgentsWithProficiency_RequiresAllAndMinimum(t *testing.T) {
	r := New()
	miner := newCap(t, "miner")
	require.NoError(t, miner.SetProficiency("mining", 0.8))
	farmer := newCap(t, "farmer")
	require.NoError(t, farmer.SetProficiency("farming", 0.8))
	require.NoError(t, r.Register(miner))
	require.NoError(t, r.Register(farmer))

	got := r.FindCapableAgentsWithProficiency(map[string]float64{"mining": 0.5})
	require.Len(t, got, 1)
	assert.True(t, got[0].AgentID().Equal(miner.AgentID()))
}

func TestFindCapableAgentsWithProficiency_EmptyMatchesAll(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newCap(t, "a")))
	require.NoError(t, r.Register(newCap(t, "b")))

	assert.Len(t, r.FindCapableAgentsWithProficiency(nil), 2)
}

func TestGetNearbyAgents_InclusiveAtExactRadius(t *testing.T) {
	r := New()
	c := newCap(t, "a")
	c.UpdatePosition(spatial.Vec3i{X: 3, Y: 4, Z: 0})
	require.NoError(t, r.Register(c))

	got := r.GetNearbyAgents(spatial.Vec3i{}, 5.0)
	assert.Len(t, got, 1)

	got = r.GetNearbyAgents(spatial.Vec3i{}, 4.999)
	assert.Len(t, got, 0)
}

func TestGetAvailableAgents(t *testing.T) {
	r := New()
	available := newCap(t, "avail")
	busy := newCap(t, "busy")
	busy.UpdateLoad(0.95)
	require.NoError(t, r.Register(available))
	require.NoError(t, r.Register(busy))

	got := r.GetAvailableAgents()
	require.Len(t, got, 1)
	assert.True(t, got[0].AgentID().Equal(available.AgentID()))
}

func TestGetAgentsByAvailability_SortedByLoadAscending(t *testing.T) {
	r := New()
	high := newCap(t, "high")
	high.UpdateLoad(0.9)
	low := newCap(t, "low")
	low.UpdateLoad(0.1)
	require.NoError(t, r.Register(high))
	require.NoError(t, r.Register(low))

	got := r.GetAgentsByAvailability()
	require.Len(t, got, 2)
	assert.True(t, got[0].AgentID().Equal(low.AgentID()))
	assert.True(t, got[1].AgentID().Equal(high.AgentID()))
}

func TestFindBestAgent_PrefersCloserLowerLoadOverFarSpecialist(t *testing.T) {
	r := New()

	specialist := newCap(t, "specialist")
	require.NoError(t, specialist.SetProficiency("mining", 0.9))
	specialist.UpdateLoad(0.2)
	specialist.UpdatePosition(spatial.Vec3i{X: 100, Y: 64, Z: 100})

	generalist := newCap(t, "generalist")
	require.NoError(t, generalist.SetProficiency("mining", 0.7))
	generalist.UpdateLoad(0.5)
	generalist.UpdatePosition(spatial.Vec3i{X: 10, Y: 64, Z: 10})

	novice := newCap(t, "novice")
	require.NoError(t, novice.SetProficiency("mining", 0.6))
	novice.UpdateLoad(0.1)
	novice.UpdatePosition(spatial.Vec3i{X: 5, Y: 64, Z: 5})

	require.NoError(t, r.Register(specialist))
	require.NoError(t, r.Register(generalist))
	require.NoError(t, r.Register(novice))

	taskPos := spatial.Vec3i{X: 0, Y: 64, Z: 0}
	best := r.FindBestAgent(map[string]float64{"mining": 0.5}, &taskPos)

	require.NotNil(t, best)
	assert.NotEqual(t, specialist.AgentID(), best.AgentID())
}

func TestCleanupInactive_RemovesAndCountsAndFiresUnregister(t *testing.T) {
	r := New()
	rec := &recordingListener{}
	r.AddListener(rec)

	active := newCap(t, "active")
	inactive := newCap(t, "inactive")
	inactive.SetActive(false)
	require.NoError(t, r.Register(active))
	require.NoError(t, r.Register(inactive))

	removed := r.CleanupInactive()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []identity.AgentId{inactive.AgentID()}, rec.unregistered)
}

func TestCleanupIdle_RemovesOnlyAgentsPastThreshold(t *testing.T) {
	r := New()
	rec := &recordingListener{}
	r.AddListener(rec)

	clock := &fakeClock{ms: 0}
	stale := newCapWithClock(t, "stale", clock)
	require.NoError(t, r.Register(stale))

	clock.ms = 60_000
	fresh := newCapWithClock(t, "fresh", clock)
	require.NoError(t, r.Register(fresh))

	removed := r.CleanupIdle(120_000, 90*time.Second)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Count())
	_, ok := r.Get(stale.AgentID())
	assert.False(t, ok)
	assert.Equal(t, []identity.AgentId{stale.AgentID()}, rec.unregistered)
}
