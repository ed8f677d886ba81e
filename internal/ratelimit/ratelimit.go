// Package ratelimit offers token-bucket limiting with a process-local backend
// and a redis backend for deployments running more than one proxy replica.
package ratelimit

import "context"

type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
	Remaining         float64
}

type Limiter interface {
	Allow(ctx context.Context, key string, rps float64, burst float64, cost float64) (Decision, error)
	Close() error
}
