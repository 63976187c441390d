// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package capability implements the Capability: an agent's skills, tool
// access, position, load, and bid scoring. A Capability is thread-safe —
// every mutating method is atomic with respect to observers, and every
// accessor returns an unmodifiable snapshot.
package capability

import (
	"strings"
	"sync"
	"time"

	"github.com/sipeed/swarmcore/pkg/corerr"
	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/spatial"
	"github.com/sipeed/swarmcore/pkg/task"
)

const (
	// defaultProficiency is assigned by AddSkill when a skill has none yet.
	defaultProficiency = 0.5
	// availabilityLoadCeiling is the strict upper bound for IsAvailable.
	availabilityLoadCeiling = 0.8
	// defaultMaxRange is the distance (in position units) beyond which the
	// distance term of the bid score bottoms out at 0.
	defaultMaxRange = 128.0
)

// Bid scoring weights (spec §4.1).
const (
	weightSkills   = 0.5
	weightLoad     = 0.3
	weightDistance = 0.1
	weightTools    = 0.1
)

type taskHistoryEntry struct {
	count            int
	lastCompletionMs int64
}

// Capability is the mutable, thread-safe description of one agent's skills,
// tools, position, load, and task history.
type Capability struct {
	agentID   identity.AgentId
	agentName string

	mu            sync.RWMutex
	skills        map[string]struct{}
	proficiencies map[string]float64
	tools         map[string]struct{}
	position      spatial.Vec3i
	load          float64
	active        bool
	history       map[string]taskHistoryEntry
	maxRange      float64
	loadCeiling   float64
	lastActiveMs  int64
	clock         identity.Clock
}

// Option configures an optional Capability field at construction time,
// letting a host thread its RegistryConfig defaults (max range,
// availability load ceiling) into each agent it constructs.
type Option func(*Capability)

// WithMaxRange overrides the distance normalization range used by
// CalculateBidScore (default 128). Values <= 0 are ignored.
func WithMaxRange(r float64) Option {
	return func(c *Capability) {
		if r > 0 {
			c.maxRange = r
		}
	}
}

// WithAvailabilityLoadCeiling overrides the strict upper load bound used
// by IsAvailable (default 0.8). Values outside (0,1] are ignored.
func WithAvailabilityLoadCeiling(v float64) Option {
	return func(c *Capability) {
		if v > 0 && v <= 1 {
			c.loadCeiling = v
		}
	}
}

// New creates a Capability for agentID/agentName, active by default.
// agentName must not be blank. clock may be nil to use identity.SystemClock.
func New(agentID identity.AgentId, agentName string, clock identity.Clock, opts ...Option) (*Capability, error) {
	if strings.TrimSpace(agentName) == "" {
		return nil, corerr.New(corerr.InvalidArg, "capability: agentName must not be blank")
	}
	if clock == nil {
		clock = identity.SystemClock
	}
	c := &Capability{
		agentID:       agentID,
		agentName:     agentName,
		skills:        make(map[string]struct{}),
		proficiencies: make(map[string]float64),
		tools:         make(map[string]struct{}),
		active:        true,
		history:       make(map[string]taskHistoryEntry),
		maxRange:      defaultMaxRange,
		loadCeiling:   availabilityLoadCeiling,
		lastActiveMs:  clock.NowMs(),
		clock:         clock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Capability) AgentID() identity.AgentId { return c.agentID }
func (c *Capability) AgentName() string         { return c.agentName }

// Equal implements agentId-only equality (spec §4.1).
func (c *Capability) Equal(other *Capability) bool {
	if other == nil {
		return false
	}
	return c.agentID.Equal(other.agentID)
}

// SetMaxRange overrides the distance normalization range used by
// CalculateBidScore (default 128).
func (c *Capability) SetMaxRange(r float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r > 0 {
		c.maxRange = r
	}
}

// AddSkill lowercases and registers s, defaulting its proficiency to 0.5 if
// it has none yet. Null/blank input is ignored silently.
func (c *Capability) AddSkill(s string) {
	norm := normalize(s)
	if norm == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skills[norm] = struct{}{}
	if _, ok := c.proficiencies[norm]; !ok {
		c.proficiencies[norm] = defaultProficiency
	}
}

// SetProficiency sets the proficiency for s, implicitly adding the skill.
// Fails with INVALID_ARG if v is outside [0,1]. Blank skill is ignored
// silently.
func (c *Capability) SetProficiency(s string, v float64) error {
	norm := normalize(s)
	if norm == "" {
		return nil
	}
	if v < 0 || v > 1 {
		return corerr.New(corerr.InvalidArg, "capability: proficiency %v out of [0,1]", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skills[norm] = struct{}{}
	c.proficiencies[norm] = v
	return nil
}

// RemoveSkill removes both the skill and its proficiency. Returns whether
// the skill was present.
func (c *Capability) RemoveSkill(s string) bool {
	norm := normalize(s)
	if norm == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed := c.skills[norm]
	delete(c.skills, norm)
	delete(c.proficiencies, norm)
	return existed
}

// HasSkill is case-insensitive and null-tolerant (blank => false).
func (c *Capability) HasSkill(s string) bool {
	norm := normalize(s)
	if norm == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.skills[norm]
	return ok
}

// HasTool is case-insensitive and null-tolerant (blank => false).
func (c *Capability) HasTool(t string) bool {
	norm := normalize(t)
	if norm == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tools[norm]
	return ok
}

// HasTools reports whether every tool in the set is held. An empty or nil
// set is vacuously true.
func (c *Capability) HasTools(tools map[string]struct{}) bool {
	if len(tools) == 0 {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for t := range tools {
		if _, ok := c.tools[normalize(t)]; !ok {
			return false
		}
	}
	return true
}

// AddTool registers a tool, case-insensitively.
func (c *Capability) AddTool(t string) {
	norm := normalize(t)
	if norm == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[norm] = struct{}{}
}

// RemoveTool removes a tool, returning whether it was present.
func (c *Capability) RemoveTool(t string) bool {
	norm := normalize(t)
	if norm == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed := c.tools[norm]
	delete(c.tools, norm)
	return existed
}

// UpdateLoad clamps v into [0,1] and never fails.
func (c *Capability) UpdateLoad(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load = clamp01(v)
	c.lastActiveMs = c.clock.NowMs()
}

// UpdatePosition sets the current position. p is a value type, so there is
// no nil update to ignore; the zero value is a legitimate position.
func (c *Capability) UpdatePosition(p spatial.Vec3i) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.lastActiveMs = c.clock.NowMs()
}

// SetActive toggles whether this agent is eligible for selection.
func (c *Capability) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
}

// IsAvailable reports active && currentLoad < loadCeiling (default 0.8,
// strict), overridable per-instance via WithAvailabilityLoadCeiling.
func (c *Capability) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active && c.load < c.loadCeiling
}

// DistanceTo returns the Euclidean distance to p.
func (c *Capability) DistanceTo(p spatial.Vec3i) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return spatial.Distance(c.position, p)
}

// RecordTaskCompletion increments the completion count for taskType and
// stamps the current monotonic time. Blank taskType is ignored.
func (c *Capability) RecordTaskCompletion(taskType string) {
	norm := strings.TrimSpace(taskType)
	if norm == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.history[norm]
	entry.count++
	entry.lastCompletionMs = c.clock.NowMs()
	c.history[norm] = entry
	c.lastActiveMs = entry.lastCompletionMs
}

// LastActiveMs returns the clock reading as of the most recent
// UpdateLoad, UpdatePosition, or RecordTaskCompletion call.
func (c *Capability) LastActiveMs() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActiveMs
}

// IdleSince reports whether this capability has had no recorded activity
// for at least d, as of nowMs.
func (c *Capability) IdleSince(nowMs int64, d time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return nowMs-c.lastActiveMs >= d.Milliseconds()
}

// TaskHistoryEntry is a read-only snapshot of one task type's history.
type TaskHistoryEntry struct {
	Count            int
	LastCompletionMs int64
}

// TaskHistory returns an unmodifiable snapshot of task-type -> history.
func (c *Capability) TaskHistory() map[string]TaskHistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]TaskHistoryEntry, len(c.history))
	for k, v := range c.history {
		out[k] = TaskHistoryEntry{Count: v.count, LastCompletionMs: v.lastCompletionMs}
	}
	return out
}

// Skills returns an unmodifiable snapshot of the skill set.
func (c *Capability) Skills() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{}, len(c.skills))
	for k := range c.skills {
		out[k] = struct{}{}
	}
	return out
}

// Proficiencies returns an unmodifiable snapshot of skill -> proficiency.
func (c *Capability) Proficiencies() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.proficiencies))
	for k, v := range c.proficiencies {
		out[k] = v
	}
	return out
}

// Tools returns an unmodifiable snapshot of the tool set.
func (c *Capability) Tools() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{}, len(c.tools))
	for k := range c.tools {
		out[k] = struct{}{}
	}
	return out
}

func (c *Capability) Position() spatial.Vec3i {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

func (c *Capability) Load() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.load
}

func (c *Capability) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CalculateBidScore computes the weighted-sum score for a candidate
// announcement, clamped to [0,1]. Returns 0 if the capability is inactive
// or announcement is nil.
func (c *Capability) CalculateBidScore(ann *task.Announcement) float64 {
	if ann == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.active {
		return 0
	}

	required := ann.RequiredSkills()
	skillTerm := c.skillTermLocked(required)
	loadTerm := 1 - c.load
	distanceTerm := c.distanceTermLocked(ann)
	toolTerm := c.toolTermLocked(ann.RequiredTools())

	score := weightSkills*skillTerm + weightLoad*loadTerm + weightDistance*distanceTerm + weightTools*toolTerm
	return clamp01(score)
}

// skillTermLocked must be called with c.mu held.
func (c *Capability) skillTermLocked(required map[string]float64) float64 {
	if len(required) == 0 {
		if len(c.proficiencies) == 0 {
			return 0.5
		}
		sum := 0.0
		for _, p := range c.proficiencies {
			sum += p
		}
		return sum / float64(len(c.proficiencies))
	}

	sum := 0.0
	for skill, minProf := range required {
		p := c.proficiencies[skill]
		if p >= minProf {
			sum += p
		} else if minProf > 0 {
			sum += p * (p / minProf)
		}
	}
	return sum / float64(len(required))
}

// distanceTermLocked must be called with c.mu held.
func (c *Capability) distanceTermLocked(ann *task.Announcement) float64 {
	loc, ok := ann.RequiredLocation()
	if !ok {
		return 1.0
	}
	dist := spatial.Distance(c.position, loc)
	maxRange := c.maxRange
	if maxRange <= 0 {
		maxRange = defaultMaxRange
	}
	term := 1 - dist/maxRange
	if term < 0 {
		return 0
	}
	return term
}

// toolTermLocked must be called with c.mu held.
func (c *Capability) toolTermLocked(required map[string]struct{}) float64 {
	if len(required) == 0 {
		return 1.0
	}
	held := 0
	for t := range required {
		if _, ok := c.tools[t]; ok {
			held++
		}
	}
	return float64(held) / float64(len(required))
}

// CreateBid builds a TaskBid for ann with the given time estimate and
// confidence, scored via CalculateBidScore and populated with the
// conventional capabilities map.
func (c *Capability) CreateBid(ann *task.Announcement, estimatedTimeMs int64, confidence float64) task.Bid {
	score := c.CalculateBidScore(ann)

	c.mu.RLock()
	proficiencies := make(map[string]float64, len(c.proficiencies))
	for k, v := range c.proficiencies {
		proficiencies[k] = v
	}
	caps := map[string]interface{}{
		task.CapKeyProficiencies: proficiencies,
		task.CapKeyTools:         toolNames(c.tools),
		task.CapKeyCurrentLoad:   c.load,
	}
	if loc, ok := ann.RequiredLocation(); ok {
		caps[task.CapKeyDistance] = spatial.Distance(c.position, loc)
	}
	c.mu.RUnlock()

	return task.Bid{
		AnnouncementID:  ann.ID(),
		BidderID:        c.agentID,
		Score:           score,
		EstimatedTimeMs: estimatedTimeMs,
		Confidence:      clamp01(confidence),
		Capabilities:    caps,
	}
}

func toolNames(tools map[string]struct{}) []string {
	out := make([]string, 0, len(tools))
	for t := range tools {
		out = append(out, t)
	}
	return out
}
