// Package bufpool recycles the per-session read scratch buffers.
//
// Every session reads into a buffer of the configured buffer_size. With many
// short-lived field-device connections the same few sizes are requested over
// and over, so buffers are kept in size-keyed sync.Pools instead of being
// allocated per connection.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

// MaxPooledSize is the largest buffer kept for reuse. Larger requests are
// allocated directly and left to the GC.
const MaxPooledSize = 1 << 20

// Pool hands out byte slices grouped by exact capacity.
type Pool struct {
	pools sync.Map // int -> *sync.Pool
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) poolFor(size int) *sync.Pool {
	if sp, ok := p.pools.Load(size); ok {
		return sp.(*sync.Pool)
	}
	sp, _ := p.pools.LoadOrStore(size, &sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	})
	return sp.(*sync.Pool)
}

// Get returns a slice of exactly size bytes. Non-positive sizes yield nil.
func (p *Pool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > MaxPooledSize {
		return make([]byte, size)
	}
	bufPtr := p.poolFor(size).Get().(*[]byte)
	return (*bufPtr)[:size]
}

// Put returns buf for reuse. The caller must not touch buf afterwards.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	if c == 0 || c > MaxPooledSize {
		return
	}
	full := buf[:c]
	p.poolFor(c).Put(&full)
}

var globalPool = NewPool()

// Get returns a buffer of size bytes from the shared pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer obtained from Get to the shared pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
