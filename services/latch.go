package services

import "sync/atomic"

// Latch admits one holder at a time and never blocks. It is released by
// the holder once its operation settles.
type Latch struct {
	busy atomic.Bool
}

func (l *Latch) TryAcquire() bool {
	return l.busy.CompareAndSwap(false, true)
}

func (l *Latch) Release() {
	l.busy.Store(false)
}

func (l *Latch) Busy() bool {
	return l.busy.Load()
}
