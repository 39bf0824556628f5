package ratelimit

import (
	"fmt"
	"math"
	"time"

	"github.com/uhoapp/authkit/internal/common"
)

// Code is the machine-readable code of a rate limit refusal.
const Code = "RATE_LIMITED"

// ExceededError reports a refused request together with the retry hint.
// errors.Is(err, common.ErrRateLimitExceeded) holds for every ExceededError.
type ExceededError struct {
	Scope      string
	Key        string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %d seconds", e.Scope, e.RetryAfterSeconds())
}

// Is matches common.ErrRateLimitExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == common.ErrRateLimitExceeded
}

// RetryAfterSeconds is the retry delay rounded up to whole seconds, never
// below one.
func (e *ExceededError) RetryAfterSeconds() int {
	return retrySeconds(e.RetryAfter)
}

// Message is the human-readable text sent to clients.
func (e *ExceededError) Message() string {
	return fmt.Sprintf("Too many requests, retry in %d seconds", e.RetryAfterSeconds())
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
