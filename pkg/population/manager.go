// Package population manages generation membership for the evolutionary
// search: size and diversity policy, elitism, and the append-only
// generation history that forms the run's audit trail.
package population

import (
	"sort"
	"sync"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
)

// Manager holds the current generation's candidates and their fitness
// records. Candidates are deduplicated by content identity within a
// generation; redundant exploration wastes budget.
type Manager struct {
	mu sync.Mutex

	size    int
	current []core.GenerationMember
	seen    map[string]struct{}
	history []*core.Generation

	generation int
	discovery  int
	frozen     bool
}

// NewManager creates a manager for populations of the given size.
func NewManager(size int) *Manager {
	return &Manager{
		size: size,
		seen: make(map[string]struct{}),
	}
}

// Install adds a candidate to the current generation. Returns false when
// the candidate duplicates an existing member, the generation is full, or
// the population is frozen. On success the candidate receives its
// discovery sequence number and generation index.
func (m *Manager) Install(candidate *core.Candidate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen || len(m.current) >= m.size {
		return false
	}
	if _, dup := m.seen[candidate.ID]; dup {
		return false
	}

	m.discovery++
	candidate.Discovery = m.discovery
	candidate.Generation = m.generation

	m.seen[candidate.ID] = struct{}{}
	m.current = append(m.current, core.GenerationMember{Candidate: candidate})
	return true
}

// Contains reports whether a prompt's content identity is already present
// in the current generation.
func (m *Manager) Contains(prompt string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[core.ContentID(prompt)]
	return ok
}

// SetFitness records a candidate's fitness in the current generation.
func (m *Manager) SetFitness(candidateID string, record *core.FitnessRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.current {
		if m.current[i].Candidate.ID == candidateID {
			m.current[i].Fitness = record
			return
		}
	}
}

// Members returns a copy of the current generation's members in
// installation order.
func (m *Manager) Members() []core.GenerationMember {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.GenerationMember, len(m.current))
	copy(out, m.current)
	return out
}

// Size reports the configured population size.
func (m *Manager) Size() int {
	return m.size
}

// Len reports how many candidates the current generation holds.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.current)
}

// GenerationIndex reports the index of the current generation.
func (m *Manager) GenerationIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Ranked returns the current members ordered by fitness descending with
// ties broken by earlier discovery. The ordering is deterministic, which
// makes the reported best candidate reproducible. Unscored members sort
// last in discovery order.
func (m *Manager) Ranked() []core.GenerationMember {
	members := m.Members()
	sort.SliceStable(members, func(i, j int) bool {
		fi, fj := members[i].Fitness, members[j].Fitness
		switch {
		case fi == nil && fj == nil:
			return members[i].Candidate.Discovery < members[j].Candidate.Discovery
		case fi == nil:
			return false
		case fj == nil:
			return true
		case fi.Score != fj.Score:
			return fi.Score > fj.Score
		default:
			return members[i].Candidate.Discovery < members[j].Candidate.Discovery
		}
	})
	return members
}

// Elites returns the top-k scored members of the current generation.
func (m *Manager) Elites(k int) []core.GenerationMember {
	ranked := m.Ranked()
	elites := make([]core.GenerationMember, 0, k)
	for _, member := range ranked {
		if member.Fitness == nil {
			break
		}
		elites = append(elites, member)
		if len(elites) == k {
			break
		}
	}
	return elites
}

// Commit appends a snapshot of the current generation to the history.
// Generations are append-only: once committed they are never mutated.
func (m *Manager) Commit() *core.Generation {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := &core.Generation{
		Index:   m.generation,
		Members: make([]core.GenerationMember, len(m.current)),
	}
	copy(snapshot.Members, m.current)
	m.history = append(m.history, snapshot)
	return snapshot
}

// Advance begins the next generation seeded with the given elite members,
// which carry over unchanged (candidate and fitness both). The population
// never falls below one candidate as long as at least one elite exists.
func (m *Manager) Advance(elites []core.GenerationMember) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return
	}

	m.generation++
	m.current = m.current[:0]
	m.seen = make(map[string]struct{})

	for _, elite := range elites {
		if len(m.current) >= m.size {
			break
		}
		if _, dup := m.seen[elite.Candidate.ID]; dup {
			continue
		}
		m.seen[elite.Candidate.ID] = struct{}{}
		m.current = append(m.current, elite)
	}
}

// Freeze stops all further installs and advances. Called when the budget
// runs out mid-generation so the controller can terminate with whatever
// scores were obtained.
func (m *Manager) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Frozen reports whether the population is frozen.
func (m *Manager) Frozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen
}

// History returns the committed generations in order.
func (m *Manager) History() []*core.Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Generation, len(m.history))
	copy(out, m.history)
	return out
}

// Best returns the best scored member across the committed history and
// the current generation, ties broken by earliest discovery.
func (m *Manager) Best() *core.GenerationMember {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *core.GenerationMember
	consider := func(member core.GenerationMember) {
		if member.Fitness == nil {
			return
		}
		if best == nil ||
			member.Fitness.Score > best.Fitness.Score ||
			(member.Fitness.Score == best.Fitness.Score && member.Candidate.Discovery < best.Candidate.Discovery) {
			m := member
			best = &m
		}
	}

	for _, gen := range m.history {
		for _, member := range gen.Members {
			consider(member)
		}
	}
	for _, member := range m.current {
		consider(member)
	}
	return best
}
