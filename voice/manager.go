// SPDX-License-Identifier: EPL-2.0

package voice

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/internal/arena"
)

// Config sets up the pools and limit groups of a Manager.
type Config struct {
	Pools            []Pool
	Groups           []LimitGroup
	MaxVirtualVoices int
	Logger           logrus.FieldLogger
}

type virtualVoice struct {
	req Request
	seq uint64
}

// Manager owns every voice of an engine.
type Manager struct {
	mu sync.Mutex

	pools      []Pool
	poolActive []int
	groups     []LimitGroup
	groupIndex map[string]int
	groupCount []int

	voices     *arena.Arena[Voice]
	virtual    []virtualVoice
	maxVirtual int
	seq        uint64

	log logrus.FieldLogger
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("%w: at least one pool is required", ErrInvalidPool)
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	total := 0
	seen := make(map[string]struct{}, len(cfg.Pools))
	for _, p := range cfg.Pools {
		if p.NumVoices < 0 || p.MaxChannels <= 0 || p.MaxSamplingRate <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPool, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: pool %q", ErrDuplicateName, p.Name)
		}
		seen[p.Name] = struct{}{}
		total += p.NumVoices
	}

	m := &Manager{
		pools:      append([]Pool(nil), cfg.Pools...),
		poolActive: make([]int, len(cfg.Pools)),
		groupIndex: make(map[string]int, len(cfg.Groups)),
		voices:     arena.New[Voice](total),
		maxVirtual: max(cfg.MaxVirtualVoices, 0),
		log:        log,
	}

	for _, g := range cfg.Groups {
		if g.Name == "" || g.Name == NoGroupLimitation {
			return nil, fmt.Errorf("%w: group name %q is reserved", ErrInvalidPool, g.Name)
		}
		if _, dup := m.groupIndex[g.Name]; dup {
			return nil, fmt.Errorf("%w: group %q", ErrDuplicateName, g.Name)
		}
		m.groupIndex[g.Name] = len(m.groups)
		m.groups = append(m.groups, g)
	}
	m.groupCount = make([]int, len(m.groups))

	log.WithFields(logrus.Fields{
		"function":    "NewManager",
		"pools":       len(m.pools),
		"voices":      total,
		"groups":      len(m.groups),
		"max_virtual": m.maxVirtual,
	}).Debug("Voice manager created")

	return m, nil
}

// Allocate serves req immediately, parks it as a virtual voice, or rejects it.
func (m *Manager) Allocate(req Request) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.allocate(req, false)
	if res.Outcome == Allocated || (res.Err != nil && res.Err != ErrNoVoice) {
		return res
	}

	if req.Mode == AllocateOnce {
		m.log.WithFields(logrus.Fields{
			"function": "Allocate",
			"owner":    req.Owner,
			"priority": req.Priority,
			"group":    req.Group,
		}).Debug("Voice request rejected")
		return res
	}

	m.seq++
	if err := m.park(virtualVoice{req: req, seq: m.seq}); err != nil {
		return Result{Owner: req.Owner, Outcome: Rejected, Err: err}
	}
	return Result{Owner: req.Owner, Outcome: Deferred}
}

// Retry gives parked virtual voices another chance, oldest first. It returns
// the requests that got a voice.
func (m *Manager) Retry() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.virtual) == 0 {
		return nil
	}

	var done []Result
	pending := slices.Clone(m.virtual)

	for _, vv := range pending {
		idx := slices.IndexFunc(m.virtual, func(c virtualVoice) bool { return c.seq == vv.seq })
		if idx < 0 {
			continue
		}
		// out of the queue while it competes, so its own victims can be parked
		m.virtual = slices.Delete(m.virtual, idx, idx+1)

		res := m.allocate(vv.req, true)
		if res.Outcome != Allocated {
			m.virtual = slices.Insert(m.virtual, idx, vv)
			continue
		}
		done = append(done, res)
	}

	return done
}

// Release frees the voice. It reports false for stale ids.
func (m *Manager) Release(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release(id)
}

// CancelVirtual removes every virtual voice owned by owner.
func (m *Manager) CancelVirtual(owner Owner) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.virtual[:0]
	removed := 0
	for _, vv := range m.virtual {
		if vv.req.Owner == owner {
			removed++
			continue
		}
		kept = append(kept, vv)
	}
	m.virtual = kept
	return removed
}

// Info returns a copy of the voice record.
func (m *Manager) Info(id ID) (Voice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.voices.Get(id)
	if !ok {
		return Voice{}, false
	}
	return *v, true
}

// Active returns the number of voices in use.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voices.Len()
}

// ActiveInGroup returns the number of voices held by the limit group.
func (m *Manager) ActiveInGroup(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	gi, ok := m.groupIndex[name]
	if !ok {
		return 0
	}
	return m.groupCount[gi]
}

// Virtual returns the number of parked requests.
func (m *Manager) Virtual() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.virtual)
}

// Capacity returns the total number of voices over all pools.
func (m *Manager) Capacity() int {
	total := 0
	for _, p := range m.pools {
		total += p.NumVoices
	}
	return total
}

// Reset releases every voice and drops every virtual voice.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.voices.Clear()
	m.virtual = nil
	clear(m.poolActive)
	clear(m.groupCount)
}

func (m *Manager) groupOf(req Request) int {
	if req.Group == "" || req.Group == NoGroupLimitation {
		return -1
	}
	gi, ok := m.groupIndex[req.Group]
	if !ok {
		m.log.WithFields(logrus.Fields{
			"function": "Allocate",
			"group":    req.Group,
		}).Warn("Unknown voice limit group, treating request as ungrouped")
		return -1
	}
	return gi
}

// wins reports whether req may take a voice of priority victim.
func wins(req Request, victim int, strict bool) bool {
	if req.Priority != victim {
		return req.Priority > victim
	}
	return !strict && req.Control == PreferLast
}

// lowest returns the lowest-priority, oldest voice accepted by match.
func (m *Manager) lowest(match func(*Voice) bool) (ID, *Voice) {
	var (
		bestID ID
		best   *Voice
	)
	m.voices.Each(func(id ID, v *Voice) bool {
		if !match(v) {
			return true
		}
		if best == nil || v.Priority < best.Priority || v.Priority == best.Priority && v.seq < best.seq {
			bestID, best = id, v
		}
		return true
	})
	return bestID, best
}

// allocate plans the whole allocation before touching any voice, so a request
// that loses arbitration leaves the manager unchanged.
func (m *Manager) allocate(req Request, strict bool) Result {
	fail := func(err error) Result {
		return Result{Owner: req.Owner, Outcome: Rejected, Err: err}
	}

	capacity := 0
	for _, p := range m.pools {
		if p.accepts(req.Channels, req.SamplingRate) {
			capacity += p.NumVoices
		}
	}
	if capacity == 0 {
		m.log.WithFields(logrus.Fields{
			"function":      "Allocate",
			"owner":         req.Owner,
			"channels":      req.Channels,
			"sampling_rate": req.SamplingRate,
		}).Warn("No voice pool matches the request format")
		return fail(ErrNoMatchingPool)
	}

	gi := m.groupOf(req)
	var groupVictimID ID
	var groupVictim *Voice
	if gi >= 0 {
		g := m.groups[gi]
		if g.MaxVoices <= 0 {
			return fail(fmt.Errorf("%w: %q", ErrGroupClosed, g.Name))
		}
		if m.groupCount[gi] >= g.MaxVoices {
			groupVictimID, groupVictim = m.lowest(func(v *Voice) bool { return v.group == gi })
			if groupVictim == nil || !wins(req, groupVictim.Priority, strict) {
				return fail(ErrNoVoice)
			}
		}
	}

	pool := -1
	for i, p := range m.pools {
		if !p.accepts(req.Channels, req.SamplingRate) {
			continue
		}
		if m.poolActive[i] < p.NumVoices || groupVictim != nil && groupVictim.pool == i {
			pool = i
			break
		}
	}

	var poolVictimID ID
	var poolVictim *Voice
	if pool < 0 {
		poolVictimID, poolVictim = m.lowest(func(v *Voice) bool {
			return v != groupVictim && m.pools[v.pool].accepts(req.Channels, req.SamplingRate)
		})
		if poolVictim == nil || !wins(req, poolVictim.Priority, strict) {
			return fail(ErrNoVoice)
		}
		pool = poolVictim.pool
	}

	res := Result{Owner: req.Owner, Outcome: Allocated}
	if groupVictim != nil {
		res.Evicted = append(res.Evicted, m.evict(groupVictimID, req))
	}
	if poolVictim != nil {
		res.Evicted = append(res.Evicted, m.evict(poolVictimID, req))
	}

	m.seq++
	res.Voice = m.voices.Insert(Voice{
		Request: req,
		Pool:    m.pools[pool].Name,
		pool:    pool,
		group:   gi,
		seq:     m.seq,
	})
	m.poolActive[pool]++
	if gi >= 0 {
		m.groupCount[gi]++
	}

	return res
}

func (m *Manager) evict(id ID, by Request) Eviction {
	v, _ := m.voices.Get(id)
	victim := v.Request
	m.release(id)

	m.log.WithFields(logrus.Fields{
		"function":        "Allocate",
		"victim":          victim.Owner,
		"victim_priority": victim.Priority,
		"owner":           by.Owner,
		"priority":        by.Priority,
	}).Debug("Voice preempted")

	ev := Eviction{Owner: victim.Owner, Voice: id}
	if victim.Mode != AllocateRetry {
		return ev
	}

	m.seq++
	if err := m.park(virtualVoice{req: victim, seq: m.seq}); err != nil {
		ev.Err = err
		return ev
	}
	ev.Virtual = true
	return ev
}

// park queues vv as a virtual voice. When the queue is full the newcomer is
// the one dropped.
func (m *Manager) park(vv virtualVoice) error {
	if len(m.virtual) >= m.maxVirtual {
		m.log.WithFields(logrus.Fields{
			"function":    "park",
			"owner":       vv.req.Owner,
			"max_virtual": m.maxVirtual,
		}).Warn("Virtual voice limit exceeded, dropping request")
		return ErrVirtualOverflow
	}
	m.virtual = append(m.virtual, vv)
	return nil
}

func (m *Manager) release(id ID) bool {
	v, ok := m.voices.Get(id)
	if !ok {
		return false
	}
	m.poolActive[v.pool]--
	if v.group >= 0 {
		m.groupCount[v.group]--
	}
	m.voices.Remove(id)
	return true
}
