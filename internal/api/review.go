package api

import (
	"sync"

	"github.com/banshee-data/cornercase/internal/incident"
)

// maxHistory is how many completed reviews /api/status reports.
const maxHistory = 20

// ReviewQueue is the reviewer behind the HTTP review endpoint. Requests
// from the lifecycle wait in it until a client posts a decision.
type ReviewQueue struct {
	*incident.ChannelReviewer

	mu      sync.Mutex
	history []incident.Outcome
}

// NewReviewQueue creates an empty queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{ChannelReviewer: incident.NewChannelReviewer(1)}
}

// Observe records a completed review. Pass it as the runner's OnOutcome.
func (q *ReviewQueue) Observe(o incident.Outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history = append(q.history, o)
	if len(q.history) > maxHistory {
		q.history = q.history[len(q.history)-maxHistory:]
	}
}

// History returns completed reviews, newest last.
func (q *ReviewQueue) History() []incident.Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]incident.Outcome(nil), q.history...)
}
