// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package registry implements the Capability Registry: a concurrent index
// of agent Capabilities supporting skill, spatial, availability, and
// best-match queries used by the Contract-Net manager.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/sipeed/swarmcore/internal/corelog"
	"github.com/sipeed/swarmcore/pkg/capability"
	"github.com/sipeed/swarmcore/pkg/corerr"
	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/spatial"
)

const component = "registry"

// CapabilityListener observes registry mutations. Every method is optional
// in spirit — implementations may embed NoopListener and override only what
// they need.
type CapabilityListener interface {
	OnAgentRegistered(c *capability.Capability)
	OnAgentUnregistered(c *capability.Capability)
	OnPositionChanged(c *capability.Capability, pos spatial.Vec3i)
	OnLoadChanged(c *capability.Capability, load float64)
	OnCapabilitiesUpdated(c *capability.Capability)
}

// NoopListener is embeddable so callers only override the hooks they care
// about.
type NoopListener struct{}

func (NoopListener) OnAgentRegistered(*capability.Capability)                {}
func (NoopListener) OnAgentUnregistered(*capability.Capability)              {}
func (NoopListener) OnPositionChanged(*capability.Capability, spatial.Vec3i) {}
func (NoopListener) OnLoadChanged(*capability.Capability, float64)           {}
func (NoopListener) OnCapabilitiesUpdated(*capability.Capability)            {}

// Registry is the thread-safe index of agent Capabilities.
type Registry struct {
	mu          sync.RWMutex
	byID        map[identity.AgentId]*capability.Capability
	byLowerName map[string]identity.AgentId
	listeners   []CapabilityListener
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:        make(map[identity.AgentId]*capability.Capability),
		byLowerName: make(map[string]identity.AgentId),
	}
}

// AddListener registers a listener for future mutations.
func (r *Registry) AddListener(l CapabilityListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Register adds c under its AgentID. Fails with DUPLICATE if that id is
// already present, INVALID_ARG if c is nil.
func (r *Registry) Register(c *capability.Capability) error {
	if c == nil {
		return corerr.New(corerr.InvalidArg, "registry: capability must not be nil")
	}

	r.mu.Lock()
	if _, exists := r.byID[c.AgentID()]; exists {
		r.mu.Unlock()
		return corerr.New(corerr.Duplicate, "registry: agent %s already registered", c.AgentID())
	}
	r.byID[c.AgentID()] = c
	r.byLowerName[normalizeName(c.AgentName())] = c.AgentID()
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	r.notifyRegistered(listeners, c)
	return nil
}

// Unregister removes the capability for id, returning it and whether it
// was present.
func (r *Registry) Unregister(id identity.AgentId) (*capability.Capability, bool) {
	r.mu.Lock()
	c, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.byID, id)
	delete(r.byLowerName, normalizeName(c.AgentName()))
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	r.notifyUnregistered(listeners, c)
	return c, true
}

// UnregisterByName looks up id by case-insensitive name first.
func (r *Registry) UnregisterByName(name string) (*capability.Capability, bool) {
	r.mu.RLock()
	id, ok := r.byLowerName[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Unregister(id)
}

// Get looks up a capability by id.
func (r *Registry) Get(id identity.AgentId) (*capability.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// GetByName looks up a capability by case-insensitive name.
func (r *Registry) GetByName(name string) (*capability.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byLowerName[normalizeName(name)]
	if !ok {
		return nil, false
	}
	c, ok := r.byID[id]
	return c, ok
}

// UpdatePosition is a no-op on an unknown id; otherwise updates the
// capability's position and fires OnPositionChanged.
func (r *Registry) UpdatePosition(id identity.AgentId, pos spatial.Vec3i) {
	c, ok := r.Get(id)
	if !ok {
		return
	}
	c.UpdatePosition(pos)
	r.notifyPositionChanged(r.listenerSnapshot(), c, pos)
}

// UpdateLoad is a no-op on an unknown id; otherwise updates the
// capability's load and fires OnLoadChanged.
func (r *Registry) UpdateLoad(id identity.AgentId, load float64) {
	c, ok := r.Get(id)
	if !ok {
		return
	}
	c.UpdateLoad(load)
	r.notifyLoadChanged(r.listenerSnapshot(), c, c.Load())
}

// UpdateActive is a no-op on an unknown id; otherwise updates the active
// flag and fires OnCapabilitiesUpdated.
func (r *Registry) UpdateActive(id identity.AgentId, active bool) {
	c, ok := r.Get(id)
	if !ok {
		return
	}
	c.SetActive(active)
	r.notifyCapabilitiesUpdated(r.listenerSnapshot(), c)
}

// snapshotAll returns a copy of all registered capabilities.
func (r *Registry) snapshotAll() []*capability.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*capability.Capability, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// FindCapableAgents returns agents holding skill at any proficiency,
// including 0.
func (r *Registry) FindCapableAgents(skill string) []*capability.Capability {
	return r.FindCapableAgentsWithProficiency(map[string]float64{skill: 0})
}

// FindCapableAgentsWithProficiency returns agents meeting every
// skill/minimum-proficiency requirement. An empty or nil map matches all
// agents.
func (r *Registry) FindCapableAgentsWithProficiency(required map[string]float64) []*capability.Capability {
	all := r.snapshotAll()
	if len(required) == 0 {
		return all
	}

	return lo.Filter(all, func(c *capability.Capability, _ int) bool {
		return meetsRequirements(c, required)
	})
}

func meetsRequirements(c *capability.Capability, required map[string]float64) bool {
	profs := c.Proficiencies()
	for skill, minProf := range required {
		p, ok := profs[skill]
		if !ok || p < minProf {
			return false
		}
	}
	return true
}

// GetNearbyAgents returns agents within radius of center (inclusive),
// using Euclidean 3D distance.
func (r *Registry) GetNearbyAgents(center spatial.Vec3i, radius float64) []*capability.Capability {
	all := r.snapshotAll()
	return lo.Filter(all, func(c *capability.Capability, _ int) bool {
		return spatial.Distance(c.Position(), center) <= radius
	})
}

// GetAvailableAgents filters by Capability.IsAvailable.
func (r *Registry) GetAvailableAgents() []*capability.Capability {
	all := r.snapshotAll()
	return lo.Filter(all, func(c *capability.Capability, _ int) bool {
		return c.IsAvailable()
	})
}

// GetAgentsByAvailability returns active agents sorted ascending by load.
func (r *Registry) GetAgentsByAvailability() []*capability.Capability {
	all := r.snapshotAll()
	out := make([]*capability.Capability, 0, len(all))
	for _, c := range all {
		if c.Active() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Load() < out[j].Load()
	})
	return out
}

// FindBestAgent filters by availability and skill requirements, then
// scores candidates with weights skill 0.5 / load 0.3 / distance 0.2 when
// taskPos is given (skill/load absorb the distance weight proportionally
// otherwise). Returns nil if no candidate qualifies.
func (r *Registry) FindBestAgent(required map[string]float64, taskPos *spatial.Vec3i) *capability.Capability {
	candidates := r.FindCapableAgentsWithProficiency(required)

	var best *capability.Capability
	bestScore := -1.0
	for _, c := range candidates {
		if !c.IsAvailable() {
			continue
		}
		score := bestAgentScore(c, required, taskPos)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

func bestAgentScore(c *capability.Capability, required map[string]float64, taskPos *spatial.Vec3i) float64 {
	skillTerm := skillSatisfaction(c, required)
	loadTerm := 1 - c.Load()

	if taskPos == nil {
		// No distance term: roll its 0.2 weight proportionally into the
		// remaining skill(0.5)/load(0.3) split.
		const skillWeight = 0.5 / 0.8
		const loadWeight = 0.3 / 0.8
		return skillWeight*skillTerm + loadWeight*loadTerm
	}

	distanceTerm := 1 - normalizedDistance(c.DistanceTo(*taskPos))
	return 0.5*skillTerm + 0.3*loadTerm + 0.2*distanceTerm
}

func skillSatisfaction(c *capability.Capability, required map[string]float64) float64 {
	if len(required) == 0 {
		return 1.0
	}
	profs := c.Proficiencies()
	sum := 0.0
	for skill, minProf := range required {
		p := profs[skill]
		if minProf <= 0 {
			sum += 1
			continue
		}
		ratio := p / minProf
		if ratio > 1 {
			ratio = 1
		}
		sum += ratio
	}
	return sum / float64(len(required))
}

const maxScoringDistance = 128.0

func normalizedDistance(d float64) float64 {
	n := d / maxScoringDistance
	if n > 1 {
		return 1
	}
	return n
}

// CleanupInactive removes all agents with active == false, returning the
// removed count.
func (r *Registry) CleanupInactive() int {
	r.mu.Lock()
	var removed []*capability.Capability
	for id, c := range r.byID {
		if !c.Active() {
			removed = append(removed, c)
			delete(r.byID, id)
			delete(r.byLowerName, normalizeName(c.AgentName()))
		}
	}
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	for _, c := range removed {
		r.notifyUnregistered(listeners, c)
	}
	return len(removed)
}

// CleanupIdle removes every agent whose last recorded activity
// (UpdateLoad, UpdatePosition, or RecordTaskCompletion) is at least
// idleAfter old as of nowMs, regardless of its active flag. Threads
// RegistryConfig.InactiveAfterMs into eviction without touching the
// active-flag semantics CleanupInactive already owns.
func (r *Registry) CleanupIdle(nowMs int64, idleAfter time.Duration) int {
	r.mu.Lock()
	var removed []*capability.Capability
	for id, c := range r.byID {
		if !c.IdleSince(nowMs, idleAfter) {
			continue
		}
		removed = append(removed, c)
		delete(r.byID, id)
		delete(r.byLowerName, normalizeName(c.AgentName()))
	}
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	for _, c := range removed {
		r.notifyUnregistered(listeners, c)
	}
	return len(removed)
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func normalizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

func (r *Registry) listenerSnapshot() []CapabilityListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotListenersLocked()
}

func (r *Registry) snapshotListenersLocked() []CapabilityListener {
	out := make([]CapabilityListener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

func (r *Registry) notifyRegistered(listeners []CapabilityListener, c *capability.Capability) {
	for _, l := range listeners {
		safeCall(func() { l.OnAgentRegistered(c) })
	}
}

func (r *Registry) notifyUnregistered(listeners []CapabilityListener, c *capability.Capability) {
	for _, l := range listeners {
		safeCall(func() { l.OnAgentUnregistered(c) })
	}
}

func (r *Registry) notifyPositionChanged(listeners []CapabilityListener, c *capability.Capability, pos spatial.Vec3i) {
	for _, l := range listeners {
		safeCall(func() { l.OnPositionChanged(c, pos) })
	}
}

func (r *Registry) notifyLoadChanged(listeners []CapabilityListener, c *capability.Capability, load float64) {
	for _, l := range listeners {
		safeCall(func() { l.OnLoadChanged(c, load) })
	}
}

func (r *Registry) notifyCapabilitiesUpdated(listeners []CapabilityListener, c *capability.Capability) {
	for _, l := range listeners {
		safeCall(func() { l.OnCapabilitiesUpdated(c) })
	}
}

// safeCall traps a listener panic so one misbehaving listener never blocks
// delivery to the rest.
func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			corelog.WarnF(component, "listener panicked", map[string]interface{}{"recover": r})
		}
	}()
	fn()
}
