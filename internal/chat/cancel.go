package chat

import "sync/atomic"

// CancelToken is a cooperative stop flag. The stream consumer polls it after
// each received chunk; setting it never interrupts a read already in progress.
type CancelToken struct {
	flag atomic.Bool
}

func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

func (t *CancelToken) Cancelled() bool {
	return t.flag.Load()
}

func (t *CancelToken) Reset() {
	t.flag.Store(false)
}
