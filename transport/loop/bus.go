/*
Package loop implements an in-process message bus. Every Conn behaves like a connection to a
broker: it has a rank, announces the services it provides and receives the requests and
responses routed to it.

Messages are serialized on Send and parsed again on Recv, so sender and receiver never share
memory, just as with a network transport.
*/
package loop

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/queue"
	"github.com/dermesser/clustermsg/routing"
	"github.com/dermesser/clustermsg/transport"

	"github.com/google/uuid"
)

const DEFAULT_QUEUE_LENGTH = 1024

type Bus struct {
	lock         sync.Mutex
	table        *routing.Table
	conns        map[string]*Conn
	size         uint32
	queue_length int
}

// Create a bus for an instance of size ranks. Each connection buffers up to queue_length
// messages; a value <= 0 selects DEFAULT_QUEUE_LENGTH.
func NewBus(size uint32, queue_length int) *Bus {
	if queue_length <= 0 {
		queue_length = DEFAULT_QUEUE_LENGTH
	}
	return &Bus{table: routing.NewTable(), conns: make(map[string]*Conn), size: size, queue_length: queue_length}
}

func (b *Bus) Size() uint32 {
	return b.size
}

// Attach a new connection on rank, providing the given services (topic prefixes).
func (b *Bus) Connect(rank uint32, services ...string) (*Conn, error) {
	if rank >= b.size {
		return nil, fmt.Errorf("rank %d out of range (size %d): %w", rank, b.size, syscall.EINVAL)
	}
	c := &Conn{bus: b, identity: uuid.NewString(), rank: rank, inbox: queue.NewQueue[[]byte](b.queue_length)}
	c.cond = sync.NewCond(&b.lock)

	b.lock.Lock()
	defer b.lock.Unlock()

	b.table.Add(routing.Peer{Identity: c.identity, Rank: rank, Services: services})
	b.conns[c.identity] = c

	log.Log(log.LOGLEVEL_INFO, "Bus: connected", c.identity, "rank", rank, "services", services)
	return c, nil
}

// Number of attached connections.
func (b *Bus) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.conns)
}

// Routes msg from the connection with identity from. Called with b.lock held.
func (b *Bus) deliver(from *Conn, msg *proto.Message) error {
	to, err := b.table.Route(from.identity, msg)

	if err != nil {
		if msg.Type == proto.MSGTYPE_REQUEST && msg.IsRouted() {
			log.Log(log.LOGLEVEL_WARNINGS, "Bus: bouncing unroutable request", msg.Topic, "to", msg.Nodeid, ":", err)
			return b.push(from, proto.NewErrorResponse(msg, int32(err.(syscall.Errno))))
		}
		log.Log(log.LOGLEVEL_WARNINGS, "Bus: dropping unroutable", msg.Type, msg.Topic, ":", err)
		return nil
	}

	dst, ok := b.conns[to]
	if !ok {
		log.Log(log.LOGLEVEL_WARNINGS, "Bus: dropping", msg.Type, msg.Topic, "for departed peer", to)
		return nil
	}
	return b.push(dst, msg)
}

func (b *Bus) push(dst *Conn, msg *proto.Message) error {
	buf, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	if !dst.inbox.Push(buf) {
		log.Log(log.LOGLEVEL_WARNINGS, "Bus: inbox of", dst.identity, "is full")
		return syscall.EAGAIN
	}
	dst.cond.Broadcast()
	return nil
}

// A Conn is one endpoint on the bus. It implements transport.Transport.
type Conn struct {
	bus      *Bus
	identity string
	rank     uint32
	// Guarded by bus.lock
	inbox  queue.Queue[[]byte]
	cond   *sync.Cond
	closed bool
}

var _ transport.Transport = (*Conn)(nil)

func (c *Conn) Identity() string {
	return c.identity
}

func (c *Conn) Rank() uint32 {
	return c.rank
}

func (c *Conn) Size() uint32 {
	return c.bus.size
}

func (c *Conn) Send(msg *proto.Message) error {
	// Round-trip through the codec: routing modifies the message, the caller's copy stays untouched.
	buf, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	cpy, err := proto.ParseMessage(buf)
	if err != nil {
		return err
	}

	c.bus.lock.Lock()
	defer c.bus.lock.Unlock()

	if c.closed {
		return transport.ErrClosed
	}
	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.Logf(log.LOGLEVEL_DEBUG, "Bus: %s (rank %d) sends %s %s tag=%d", c.identity, c.rank, cpy.Type, cpy.Topic, cpy.Matchtag)
	}
	return c.bus.deliver(c, cpy)
}

func (c *Conn) Recv(nonblock bool) (*proto.Message, error) {
	c.bus.lock.Lock()

	for c.inbox.Len() == 0 && !c.closed {
		if nonblock {
			c.bus.lock.Unlock()
			return nil, transport.ErrWouldBlock
		}
		c.cond.Wait()
	}
	if c.closed {
		c.bus.lock.Unlock()
		return nil, transport.ErrClosed
	}
	buf, _ := c.inbox.Pop()
	c.bus.lock.Unlock()

	return proto.ParseMessage(buf)
}

// Number of messages waiting to be received.
func (c *Conn) Pending() int {
	c.bus.lock.Lock()
	defer c.bus.lock.Unlock()
	return c.inbox.Len()
}

// Detach from the bus. Blocked receivers return ErrClosed.
func (c *Conn) Close() error {
	c.bus.lock.Lock()
	defer c.bus.lock.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.bus.table.Remove(c.identity)
	delete(c.bus.conns, c.identity)
	c.cond.Broadcast()

	log.Log(log.LOGLEVEL_INFO, "Bus: disconnected", c.identity)
	return nil
}
