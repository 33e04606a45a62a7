package clustermsg

import (
	"fmt"
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/matchtag"
	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/transport"
)

/*
A Handle multiplexes many request/response exchanges over one transport connection. Responses
are correlated with their requests by matchtag; the handle owns the matchtag pool.

A Handle is not safe for concurrent use. Blocking RPCs, futures and handlers all run on the
goroutine that calls into the handle.
*/
type Handle struct {
	transport transport.Transport
	tags      *matchtag.Pool
	rank      uint32
	size      uint32

	// Messages received but not yet consumed, in arrival order.
	putback []*proto.Message

	handlers map[string]Handler
	futures  map[uint32]*Future
	// Tags of destroyed futures whose response has not arrived yet.
	orphans map[uint32]bool
	stopped bool
}

type Option func(*Handle)

// Size of the matchtag pool (tags 1..n-1 are usable).
func WithPoolSize(n uint32) Option {
	return func(h *Handle) {
		h.tags = matchtag.NewPool(n)
	}
}

func Open(t transport.Transport, opts ...Option) (*Handle, error) {
	if t == nil {
		return nil, newRequestError(STATUS_INVALID_ARGUMENT, syscall.EINVAL, fmt.Errorf("no transport"))
	}
	h := &Handle{
		transport: t,
		rank:      t.Rank(),
		size:      t.Size(),
		handlers:  make(map[string]Handler),
		futures:   make(map[uint32]*Future),
		orphans:   make(map[uint32]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tags == nil {
		h.tags = matchtag.NewPool(matchtag.DEFAULT_POOL_SIZE)
	}
	log.Log(log.LOGLEVEL_DEBUG, "Opened handle on rank", h.rank, "of", h.size)
	return h, nil
}

func (h *Handle) Rank() uint32 {
	return h.rank
}

func (h *Handle) Size() uint32 {
	return h.size
}

// The matchtag pool of this handle.
func (h *Handle) Matchtags() *matchtag.Pool {
	return h.tags
}

// Close the transport. Outstanding futures are never fulfilled.
func (h *Handle) Close() error {
	if n := len(h.futures); n > 0 {
		log.Log(log.LOGLEVEL_WARNINGS, "Closing handle with", n, "outstanding futures")
	}
	return h.transport.Close()
}

/*
Criteria for Recv. Zero values match anything: Type MSGTYPE_NONE matches every type, Matchtag
MATCHTAG_NONE every tag and an empty Topic every topic. If Blocksize > 1, tags in
[Matchtag, Matchtag+Blocksize) match.
*/
type Match struct {
	Type      proto.MsgType
	Matchtag  uint32
	Blocksize uint32
	Topic     string
}

func (m Match) matches(msg *proto.Message) bool {
	if m.Type != proto.MSGTYPE_NONE && m.Type != msg.Type {
		return false
	}
	if m.Matchtag != proto.MATCHTAG_NONE {
		bsize := m.Blocksize
		if bsize == 0 {
			bsize = 1
		}
		if msg.Matchtag < m.Matchtag || msg.Matchtag >= m.Matchtag+bsize {
			return false
		}
	}
	if m.Topic != "" && m.Topic != msg.Topic {
		return false
	}
	return true
}

// Drops the late response to a destroyed future and releases its tag.
func (h *Handle) consumeOrphan(msg *proto.Message) bool {
	if msg.Type != proto.MSGTYPE_RESPONSE || !h.orphans[msg.Matchtag] {
		return false
	}
	delete(h.orphans, msg.Matchtag)
	h.tags.Free(msg.Matchtag, 1)
	log.Log(log.LOGLEVEL_DEBUG, "Dropped late response for destroyed future, tag", msg.Matchtag)
	return true
}

/*
Receive the first message matching match. Messages that were put back are considered first.
Non-matching messages arriving in the meantime are kept and stay available, in arrival order,
to later calls.

With nonblock, transport.ErrWouldBlock is returned when no matching message is available.
*/
func (h *Handle) Recv(match Match, nonblock bool) (*proto.Message, error) {
	for i := 0; i < len(h.putback); {
		msg := h.putback[i]
		if h.consumeOrphan(msg) {
			h.putback = append(h.putback[:i], h.putback[i+1:]...)
			continue
		}
		if match.matches(msg) {
			h.putback = append(h.putback[:i], h.putback[i+1:]...)
			return msg, nil
		}
		i++
	}

	var deferred []*proto.Message
	defer func() {
		h.putback = append(h.putback, deferred...)
	}()

	for {
		msg, err := h.transport.Recv(nonblock)
		if err != nil {
			return nil, err
		}
		if h.consumeOrphan(msg) {
			continue
		}
		if match.matches(msg) {
			return msg, nil
		}
		deferred = append(deferred, msg)
	}
}

// Put msg back into the receive path; the next Recv that matches it returns it.
func (h *Handle) Requeue(msg *proto.Message) {
	h.putback = append(h.putback, msg)
}

// Number of received messages that have not been consumed yet.
func (h *Handle) Pending() int {
	return len(h.putback)
}

func (h *Handle) SendMsg(msg *proto.Message) error {
	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.Logf(log.LOGLEVEL_DEBUG, "[%d] send %s %s to %d tag=%d", h.rank, msg.Type, msg.Topic, msg.Nodeid, msg.Matchtag)
	}
	if err := h.transport.Send(msg); err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Could not send", msg.Type, msg.Topic, ":", err)
		return transportError(err)
	}
	return nil
}

/*
Send a request without waiting for a response. matchtag may be MATCHTAG_NONE or a tag the caller
allocated; if routed is set, the transport records the return path so a response can reach this
handle.
*/
func (h *Handle) Send(nodeid uint32, topic string, payload []byte, matchtag uint32, routed bool) error {
	if topic == "" {
		return newRequestError(STATUS_INVALID_ARGUMENT, syscall.EINVAL, fmt.Errorf("empty topic"))
	}
	msg := proto.NewRequest(nodeid, topic, payload)
	msg.Matchtag = matchtag
	if routed {
		msg.EnableRoute()
	}
	return h.SendMsg(msg)
}
