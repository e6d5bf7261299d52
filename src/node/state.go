package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a Marabu node: Starting, Running or Shutdown.
type State uint32

const (
	// Starting is the initial state of a node, before its event loop runs.
	Starting State = iota
	// Running processes peer messages.
	Running
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// DefaultWorkerLimit is the default maximum number of goroutines that can be
// launched through state.goFunc.
const DefaultWorkerLimit = 256

type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
	wgLimit int32
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// goFunc starts a goroutine and adds it to the waitgroup. It returns false,
// without running f, when the limit of concurrent goroutines is reached.
func (b *state) goFunc(f func()) bool {
	limit := b.wgLimit
	if limit <= 0 {
		limit = DefaultWorkerLimit
	}

	if atomic.AddInt32(&b.wgCount, 1) > limit {
		atomic.AddInt32(&b.wgCount, -1)
		return false
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer atomic.AddInt32(&b.wgCount, -1)
		f()
	}()
	return true
}

func (b *state) routines() int {
	return int(atomic.LoadInt32(&b.wgCount))
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
