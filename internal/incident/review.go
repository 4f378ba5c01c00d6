package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cornercase/internal/control"
)

// Verdict is the reviewer's answer to a review request.
type Verdict int

const (
	// Cancel closes the review without choosing.
	Cancel Verdict = iota
	Commit
	Rollback
)

func (v Verdict) String() string {
	switch v {
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	case Cancel:
		return "cancel"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// ParseVerdict is the inverse of Verdict.String.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "commit":
		return Commit, nil
	case "rollback":
		return Rollback, nil
	case "cancel":
		return Cancel, nil
	}
	return Cancel, fmt.Errorf("unknown verdict %q", s)
}

func (v Verdict) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Verdict) UnmarshalText(b []byte) error {
	parsed, err := ParseVerdict(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Decision is delivered once per review request. Reason and Comment are
// only meaningful for Commit.
type Decision struct {
	Verdict Verdict
	Reason  Reason
	Comment string
}

// ReviewRequest is what a reviewer is shown about a suspected incident.
type ReviewRequest struct {
	ID            uuid.UUID           `json:"id"`
	SessionID     uint64              `json:"session_id"`
	Kind          control.TriggerKind `json:"kind"`
	At            time.Time           `json:"at"`
	Elapsed       time.Duration       `json:"elapsed_ns"`
	Distance      float64             `json:"distance_m"`
	SensorName    string              `json:"sensor_name"`
	WeatherPreset string              `json:"weather_preset"`
}

// Reviewer opens a review for a suspected incident. The returned channel
// delivers at most one Decision; closing it without a value means Cancel.
type Reviewer interface {
	Request(ctx context.Context, req ReviewRequest) (<-chan Decision, error)
}

var (
	// ErrNoPendingReview is returned when deciding with nothing under review.
	ErrNoPendingReview = errors.New("no review pending")
)

// ChannelReviewer is an in-process Reviewer. Each request becomes the
// pending review until Decide or Abandon answers it. Requests are also
// announced on Requests for callers that want to wait for them.
type ChannelReviewer struct {
	mu       sync.Mutex
	pending  *ReviewRequest
	reply    chan Decision
	requests chan ReviewRequest
}

// NewChannelReviewer returns a reviewer whose announcement channel holds up
// to backlog requests; further announcements are dropped.
func NewChannelReviewer(backlog int) *ChannelReviewer {
	if backlog < 1 {
		backlog = 1
	}
	return &ChannelReviewer{requests: make(chan ReviewRequest, backlog)}
}

func (r *ChannelReviewer) Request(_ context.Context, req ReviewRequest) (<-chan Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reply != nil {
		// an unanswered review is superseded; its caller sees Cancel
		close(r.reply)
	}
	r.pending = &req
	r.reply = make(chan Decision, 1)

	select {
	case r.requests <- req:
	default:
	}
	return r.reply, nil
}

// Requests announces every new review request.
func (r *ChannelReviewer) Requests() <-chan ReviewRequest {
	return r.requests
}

// Pending returns the request awaiting a decision, if any.
func (r *ChannelReviewer) Pending() (ReviewRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return ReviewRequest{}, false
	}
	return *r.pending, true
}

// Decide answers the pending request.
func (r *ChannelReviewer) Decide(d Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reply == nil {
		return ErrNoPendingReview
	}
	r.reply <- d
	close(r.reply)
	r.reply = nil
	r.pending = nil
	return nil
}

// Abandon closes the pending request without a decision.
func (r *ChannelReviewer) Abandon() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reply == nil {
		return ErrNoPendingReview
	}
	close(r.reply)
	r.reply = nil
	r.pending = nil
	return nil
}
