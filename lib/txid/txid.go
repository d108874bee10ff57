// Package txid hands out the process wide transaction ids.
package txid

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrExhausted means the 32-bit id space is used up. The terminal cannot continue.
var ErrExhausted = errors.New("transaction ids exhausted")

type Counter struct {
	last uint32
}

// Seed raises the counter so that every following id is larger than last.
// Seeding with a smaller value than the current one has no effect.
func (c *Counter) Seed(last uint32) {
	for {
		current := atomic.LoadUint32(&c.last)
		if current >= last || atomic.CompareAndSwapUint32(&c.last, current, last) {
			return
		}
	}
}

func (c *Counter) Last() uint32 {
	return atomic.LoadUint32(&c.last)
}

// Next returns a new transaction id. The last id handed out is math.MaxUint32.
func (c *Counter) Next() (uint32, error) {
	for {
		current := atomic.LoadUint32(&c.last)
		if current == math.MaxUint32 {
			return 0, ErrExhausted
		}
		if atomic.CompareAndSwapUint32(&c.last, current, current+1) {
			return current + 1, nil
		}
	}
}

// Reconcile returns the larger of the server's last id and every pending one.
func Reconcile(server uint32, pending ...uint32) uint32 {
	last := server
	for _, id := range pending {
		if id > last {
			last = id
		}
	}
	return last
}
