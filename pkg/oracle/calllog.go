package oracle

import (
	"sync"
	"time"
)

// Role classifies what an oracle call was for.
type Role string

const (
	RoleRollout   Role = "rollout"   // Execute a candidate against a training input
	RoleReflect   Role = "reflect"   // Propose an improved variant from evidence
	RoleCrossover Role = "crossover" // Merge two parents
	RoleVariation Role = "variation" // Seed-stage variant with no evidence yet
	RoleExplain   Role = "explain"   // Budget-free advisory comparison
)

// CallRecord is one entry in the call log.
type CallRecord struct {
	Role         Role
	CandidateIDs []string
	Charged      bool // False when the budget reservation was refunded
	Attempts     int
	Err          error
	Timestamp    time.Time
}

// CallLog captures every oracle invocation of a run for auditing and for
// verifying budget and operator properties in tests.
type CallLog struct {
	mu      sync.Mutex
	records []CallRecord
}

func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) add(rec CallRecord) {
	if l == nil {
		return
	}
	rec.Timestamp = time.Now()
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// Records returns a copy of all recorded calls in order.
func (l *CallLog) Records() []CallRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CallRecord, len(l.records))
	copy(out, l.records)
	return out
}

// CountByRole tallies recorded calls per role.
func (l *CallLog) CountByRole() map[Role]int {
	counts := make(map[Role]int)
	for _, rec := range l.Records() {
		counts[rec.Role]++
	}
	return counts
}

// Charged counts calls that were charged against the budget.
func (l *CallLog) Charged() int {
	n := 0
	for _, rec := range l.Records() {
		if rec.Charged {
			n++
		}
	}
	return n
}
