package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Env is a single-goroutine-per-area dispatch loop: every mutation to
// an area's KvStoreDb or LinkState is serialized through
// DispatchChannel, so component code never needs its own locking.
// Grounded on the teacher's state/scheduler.go and core/runtime.go
// MainLoop, generalized away from a single global *State to one Env
// per area.
type Env struct {
	Area Area
	Log  *slog.Logger

	DispatchChannel chan func() error

	Context context.Context
	Cancel  context.CancelCauseFunc
}

// NewEnv constructs an Env bound to area, with its own cancelable
// context derived from parent.
func NewEnv(parent context.Context, area Area, log *slog.Logger) *Env {
	ctx, cancel := context.WithCancelCause(parent)
	return &Env{
		Area:            area,
		Log:             log.With("area", area),
		DispatchChannel: make(chan func() error, 64),
		Context:         ctx,
		Cancel:          cancel,
	}
}

// Dispatch queues fun to run on the loop goroutine without waiting for
// completion. fun runs later on the RunLoop goroutine, which does not
// recover panics, so a panic inside fun ends the process.
func (e *Env) Dispatch(fun func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	select {
	case e.DispatchChannel <- fun:
	case <-e.Context.Done():
	}
}

// DispatchWait queues fun and blocks until it has run, returning its
// result. Returns the Env's cancellation cause if the Env stops first.
// An error from fun goes back to the caller only; it does not cancel
// the Env.
func (e *Env) DispatchWait(fun func() (any, error)) (any, error) {
	ret := make(chan Pair[any, error], 1)
	e.Dispatch(func() error {
		res, err := fun()
		ret <- Pair[any, error]{V1: res, V2: err}
		return nil
	})
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return nil, context.Cause(e.Context)
	}
}

// ScheduleTask dispatches fun once, after delay.
func (e *Env) ScheduleTask(fun func() error, delay time.Duration) {
	time.AfterFunc(delay, func() {
		e.Dispatch(fun)
	})
}

// RepeatTask dispatches fun every delay until the Env is canceled.
func (e *Env) RepeatTask(fun func() error, delay time.Duration) {
	go e.repeatedTask(fun, delay)
}

func (e *Env) repeatedTask(fun func() error, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Dispatch(fun)
		case <-e.Context.Done():
			return
		}
	}
}

// RunLoop drains DispatchChannel until the Env's context is canceled.
// It is meant to run on its own goroutine for the lifetime of the
// owning KvStoreDb/Decision engine, matching the teacher's MainLoop.
func (e *Env) RunLoop() {
	e.Log.Debug("started dispatch loop")
	for {
		select {
		case fun := <-e.DispatchChannel:
			start := time.Now()
			if err := fun(); err != nil {
				e.Log.Error("error occurred during dispatch", "error", err)
				e.Cancel(err)
			}
			if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
				e.Log.Warn("dispatch took a long time", "elapsed", elapsed)
			}
		case <-e.Context.Done():
			e.Log.Info("stopped dispatch loop", "reason", context.Cause(e.Context))
			return
		}
	}
}
