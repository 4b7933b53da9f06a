package progress

import (
	"time"

	"github.com/drillbench/drillbench/internal/session"
)

const day = 24 * time.Hour

// nextReviewDate schedules the next review of a problem. Successes
// space reviews further apart, more so when the problem was already
// solved before; failures and skips pull the review to tomorrow no
// matter the history.
func nextReviewDate(now time.Time, status session.ResultStatus, attempts int, priorSuccess bool) time.Time {
	switch status {
	case session.ResultError, session.ResultSkipped:
		return now.Add(1 * day)
	case session.ResultWarning:
		return now.Add(2 * day)
	case session.ResultSuccess:
		if attempts == 1 {
			if priorSuccess {
				return now.Add(14 * day)
			}
			return now.Add(7 * day)
		}
		if priorSuccess {
			return now.Add(7 * day)
		}
		return now.Add(3 * day)
	}
	return now.Add(1 * day)
}
