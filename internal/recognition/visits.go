package recognition

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/facematch"
)

// DefaultRelation is stored for people first seen through a visit.
const DefaultRelation = "Unknown"

// VisitRecorder writes visit_history rows, at most one per person per cooldown.
type VisitRecorder struct {
	people   database.PeopleWriter
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func NewVisitRecorder(people database.PeopleWriter, cooldown time.Duration) *VisitRecorder {
	return &VisitRecorder{
		people:   people,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// Observe records a visit of name at the given time unless one was recorded
// less than the cooldown ago. It reports whether a visit was written.
func (v *VisitRecorder) Observe(ctx context.Context, name string, at time.Time) (bool, error) {
	key := facematch.NameKey(name)

	v.mu.Lock()
	if prev, ok := v.last[key]; ok && at.Sub(prev) < v.cooldown {
		v.mu.Unlock()
		return false, nil
	}
	prev, hadPrev := v.last[key]
	v.last[key] = at
	v.mu.Unlock()

	if err := v.people.RecordVisit(ctx, name, DefaultRelation, at); err != nil {
		v.mu.Lock()
		if hadPrev {
			v.last[key] = prev
		} else {
			delete(v.last, key)
		}
		v.mu.Unlock()
		return false, err
	}
	return true, nil
}
