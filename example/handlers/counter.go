package handlers

import (
	"sync/atomic"

	"github.com/mnehpets/typedrpc/rpc"
)

// Counter is a process-wide counter.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Methods() []rpc.Method {
	return []rpc.Method{
		rpc.Func1("Increment", rpc.Optional[int64]("by", 1), c.Increment),
		rpc.Func0("Get", c.Get),
		rpc.Proc0("Reset", c.Reset),
	}
}

// Increment adds by, which defaults to 1, and returns the new value.
func (c *Counter) Increment(by int64) (int64, error) {
	return c.n.Add(by), nil
}

func (c *Counter) Get() (int64, error) {
	return c.n.Load(), nil
}

func (c *Counter) Reset() error {
	c.n.Store(0)
	return nil
}
