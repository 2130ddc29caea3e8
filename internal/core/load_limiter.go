package core

// load_limiter.go bounds the number of loads running at once.
//
// Each load holds a database transaction and an open file for its whole
// duration, so the limiter caps both. Callers that cannot get a slot within
// maxWait receive ErrTooManyLoads. WaitForDrain blocks until every running
// load has released its slot.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyLoads is returned when no load slot frees up in time.
var ErrTooManyLoads = errors.New("too many concurrent loads, please try again later")

const (
	DefaultMaxConcurrentLoads = 4
	DefaultMaxWaitTime        = 30 * time.Second
)

// LoadLimiter is a counting semaphore over load slots.
type LoadLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// NewLoadLimiter allows at most maxConcurrent simultaneous loads.
func NewLoadLimiter(maxConcurrent int, maxWait time.Duration) *LoadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentLoads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &LoadLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits up to maxWait for a slot. The caller must Release it.
func (l *LoadLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyLoads
	}
	l.active.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *LoadLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of running loads.
func (l *LoadLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the slot count.
func (l *LoadLimiter) MaxConcurrent() int { return int(l.max) }

// Available returns the number of free slots.
func (l *LoadLimiter) Available() int { return int(l.max - l.active.Load()) }

// WaitForDrain blocks until all running loads finish or ctx is done.
// New loads cannot start while it waits.
func (l *LoadLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.max); err != nil {
		return err
	}
	l.sem.Release(l.max)
	return nil
}

// LoadLimiterStatus is a snapshot for health endpoints.
type LoadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *LoadLimiter) Status() LoadLimiterStatus {
	active := l.ActiveCount()
	return LoadLimiterStatus{
		Active:        active,
		Available:     int(l.max) - active,
		MaxConcurrent: int(l.max),
	}
}
