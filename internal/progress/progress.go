// Package progress reports gamified challenge progress to the academy API.
// Reports go through the hooks queue so a slow or failing gamification
// backend never fails the command that earned the progress.
package progress

import (
	"context"
	"net/http"
	"time"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/hooks"
)

// Event types understood by the challenges endpoint.
const (
	QuizSubmitted   = "QUIZ_SUBMITTED"
	LessonCompleted = "LESSON_COMPLETED"
	BookingAttended = "BOOKING_ATTENDED"
)

// Event is one unit of progress.
type Event struct {
	Type       string    `json:"event"`
	ResourceID string    `json:"resourceId"`
	Score      *float64  `json:"score,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Poster is the authenticated client used to send reports.
type Poster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Task builds the hooks task that posts ev to path. Client errors (4xx) and
// refresh failures are permanent; network and server errors are retried per
// policy.
func Task(client Poster, path string, ev Event, policy hooks.Policy) hooks.Task {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return hooks.Task{
		Name:   "challenge-progress:" + ev.Type,
		Policy: policy,
		Run: func(ctx context.Context) error {
			err := client.PostJSON(ctx, path, ev, nil)
			if err == nil {
				return nil
			}
			if retryable(err) {
				return err
			}
			return hooks.Permanent(err)
		},
	}
}

func retryable(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.NetworkError:
		return true
	case apperrors.RequestFailed:
		return apperrors.StatusOf(err) >= http.StatusInternalServerError || apperrors.StatusOf(err) == http.StatusTooManyRequests
	}
	return false
}
