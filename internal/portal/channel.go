package portal

import (
	"sync"

	"github.com/danmuck/ttp/internal/protocol"
)

// Channel is one logical conversation inside a portal. The application side
// enqueues with Send and drains with Receive; the selector side consumes
// outbound packets and deposits inbound ones. Both directions are FIFO and
// unbounded; the only back-pressure is AwaitOutput/AwaitInput.
type Channel struct {
	id int

	mu       sync.Mutex
	cond     *sync.Cond
	outbound []protocol.Packet
	inbound  []protocol.Packet
	closed   bool
}

func newChannel(id int) *Channel {
	c := &Channel{id: id}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// ID returns the channel id, unique within its portal.
func (c *Channel) ID() int { return c.id }

// Send enqueues p for transmission. It never blocks.
func (c *Channel) Send(p protocol.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outbound = append(c.outbound, p)
}

// Receive dequeues the head of the inbound queue. It never blocks; the
// second return is false when the queue is empty.
func (c *Channel) Receive() (protocol.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return protocol.Packet{}, false
	}
	p := c.inbound[0]
	c.inbound = c.inbound[1:]
	return p, true
}

// Peek returns the head of the inbound queue without removing it.
func (c *Channel) Peek() (protocol.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return protocol.Packet{}, false
	}
	return c.inbound[0], true
}

// AwaitOutput blocks until every packet enqueued with Send has been taken by
// the selector, or until the channel is closed. Callers must re-check the
// portal's closed flag on return.
func (c *Channel) AwaitOutput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.outbound) > 0 && !c.closed {
		c.cond.Wait()
	}
}

// AwaitInput blocks until the inbound queue is nonempty, or until the
// channel is closed. Callers must re-check the portal's closed flag on
// return.
func (c *Channel) AwaitInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.inbound) == 0 && !c.closed {
		c.cond.Wait()
	}
}

// OutputSize reports the outbound queue length. The count may be stale the
// moment it returns.
func (c *Channel) OutputSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbound)
}

// InputSize reports the inbound queue length. The count may be stale the
// moment it returns.
func (c *Channel) InputSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbound)
}

// get dequeues one outbound packet for the selector and wakes AwaitOutput
// waiters.
func (c *Channel) get() (protocol.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outbound) == 0 {
		return protocol.Packet{}, false
	}
	p := c.outbound[0]
	c.outbound = c.outbound[1:]
	c.cond.Broadcast()
	return p, true
}

// put deposits one inbound packet from the selector and wakes AwaitInput
// waiters.
func (c *Channel) put(p protocol.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, p)
	c.cond.Broadcast()
}

// close releases all waiters. The queues keep their contents so late
// receives still drain delivered packets.
func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}
