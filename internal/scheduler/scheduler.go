// Package scheduler models the minimal cooperative yield/sleep surface the
// Worker, Acceptor and Connector drain loops need. The real system hosts
// these loops as fibers inside a front-end runtime's scheduler (out of
// scope); this package provides the same three legal suspension points
// (empty channel wait, CQE wait, ring-full retry) using goroutines and
// channels so the rest of the tree has something concrete to run on.
package scheduler

import "time"

// Scheduler is a trivial cooperative scheduler abstraction: Yield gives
// other goroutines a chance to run, Sleep suspends for a bounded duration.
// Both are legal suspension points per the concurrency model; a ring-owning
// goroutine must never block outside of these.
type Scheduler interface {
	Yield()
	Sleep(d time.Duration)
}

// Default is a goroutine-backed Scheduler using runtime.Gosched and
// time.Sleep; sufficient for the single-threaded-per-ring model since each
// Worker/Acceptor/Connector already pins its loop to one goroutine.
type Default struct{}

func (Default) Yield() {
	goschedYield()
}

func (Default) Sleep(d time.Duration) {
	time.Sleep(d)
}

var _ Scheduler = Default{}
