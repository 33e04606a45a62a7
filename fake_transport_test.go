package clustermsg

import (
	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/transport"
)

// A single-goroutine transport. Requests are answered synchronously by respond; the answers
// are queued and returned by Recv in order. Recv on an empty queue fails with ErrClosed, since
// nothing could ever arrive.
type fakeTransport struct {
	rank, size uint32

	inbox []*proto.Message
	sent  []*proto.Message

	respond  func(rq *proto.Message) []*proto.Message
	failSend func(rq *proto.Message) error

	// tags of requests sent but not answered yet
	outstanding    map[uint32]bool
	maxOutstanding int
	// responses returned by Recv
	consumed int
	// nodeid -> value of consumed when the request was sent
	consumedAtSend map[uint32]int
}

func newFakeTransport(rank, size uint32) *fakeTransport {
	return &fakeTransport{
		rank:           rank,
		size:           size,
		outstanding:    make(map[uint32]bool),
		consumedAtSend: make(map[uint32]int),
	}
}

func (f *fakeTransport) inject(msgs ...*proto.Message) {
	f.inbox = append(f.inbox, msgs...)
}

func (f *fakeTransport) Send(msg *proto.Message) error {
	if f.failSend != nil {
		if err := f.failSend(msg); err != nil {
			return err
		}
	}
	msg = msg.Copy(true)
	f.sent = append(f.sent, msg)

	if msg.Type != proto.MSGTYPE_REQUEST {
		return nil
	}
	f.consumedAtSend[msg.Nodeid] = f.consumed
	if msg.Matchtag != proto.MATCHTAG_NONE {
		f.outstanding[msg.Matchtag] = true
		if len(f.outstanding) > f.maxOutstanding {
			f.maxOutstanding = len(f.outstanding)
		}
	}
	if f.respond != nil {
		f.inbox = append(f.inbox, f.respond(msg)...)
	}
	return nil
}

func (f *fakeTransport) Recv(nonblock bool) (*proto.Message, error) {
	if len(f.inbox) == 0 {
		if nonblock {
			return nil, transport.ErrWouldBlock
		}
		return nil, transport.ErrClosed
	}
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	if msg.Type == proto.MSGTYPE_RESPONSE {
		f.consumed++
		delete(f.outstanding, msg.Matchtag)
	}
	return msg, nil
}

func (f *fakeTransport) Rank() uint32 { return f.rank }
func (f *fakeTransport) Size() uint32 { return f.size }
func (f *fakeTransport) Close() error { return nil }

// Responder answering every request with the given payload.
func answerWith(payload []byte) func(*proto.Message) []*proto.Message {
	return func(rq *proto.Message) []*proto.Message {
		rsp := proto.NewResponse(rq)
		rsp.SetPayload(payload)
		return []*proto.Message{rsp}
	}
}

func failWith(errnum int32) func(*proto.Message) []*proto.Message {
	return func(rq *proto.Message) []*proto.Message {
		return []*proto.Message{proto.NewErrorResponse(rq, errnum)}
	}
}

func alienResponse(tag uint32) *proto.Message {
	rq := proto.NewRequest(0, "other.exchange", nil)
	rq.Matchtag = tag
	rsp := proto.NewResponse(rq)
	rsp.SetPayload([]byte("alien"))
	return rsp
}
