package clustermsg

import (
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
)

/*
A Future is the pending result of an asynchronous RPC. It is fulfilled when the handle receives
the response, either in Dispatch() or in Get().

The continuation set with Then() runs at most once, on the goroutine driving the handle.
*/
type Future struct {
	h     *Handle
	tag   uint32
	topic string

	ready     bool
	fired     bool
	destroyed bool
	payload   []byte
	err       error
	then      func(*Future)
}

// Send a request and return a Future for its response.
func (h *Handle) RPCAsync(nodeid uint32, topic string, in []byte) (*Future, error) {
	tag, err := h.tags.Alloc(1)
	if err != nil {
		return nil, newRequestError(STATUS_RESOURCE_EXHAUSTED, syscall.EAGAIN, err)
	}
	if err = h.Send(nodeid, topic, in, tag, true); err != nil {
		h.tags.Free(tag, 1)
		return nil, err
	}
	f := &Future{h: h, tag: tag, topic: topic}
	h.futures[tag] = f
	return f, nil
}

func (f *Future) IsReady() bool {
	return f.ready
}

func (f *Future) Topic() string {
	return f.topic
}

/*
Set the continuation. If the future is already fulfilled, cb runs immediately. A continuation
that has run is never invoked again; setting another one afterwards has no effect.
*/
func (f *Future) Then(cb func(*Future)) {
	if f.destroyed || f.fired {
		log.Log(log.LOGLEVEL_WARNINGS, "Ignoring continuation on spent future for", f.topic)
		return
	}
	f.then = cb
	if f.ready {
		f.fire()
	}
}

// Return the response payload, blocking until the response has arrived.
func (f *Future) Get() ([]byte, error) {
	if f.destroyed {
		return nil, newRequestError(STATUS_INVALID_ARGUMENT, syscall.EINVAL, nil)
	}
	if !f.ready {
		rsp, err := f.h.Recv(Match{Type: proto.MSGTYPE_RESPONSE, Matchtag: f.tag}, false)
		if err != nil {
			return nil, transportError(err)
		}
		f.h.fulfill(f, rsp)
	}
	return f.payload, f.err
}

/*
Stop waiting for the response. The remote side is not told; if the response arrives later, it is
discarded and only then is the matchtag released.
*/
func (f *Future) Destroy() {
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.then = nil
	if !f.ready {
		delete(f.h.futures, f.tag)
		f.h.orphans[f.tag] = true
	}
}

func (f *Future) fire() {
	if f.then == nil || f.fired {
		return
	}
	f.fired = true
	f.then(f)
}

// Record the result of f from rsp, release the tag and run the continuation.
func (h *Handle) fulfill(f *Future, rsp *proto.Message) {
	delete(h.futures, f.tag)
	h.tags.Free(f.tag, 1)

	f.ready = true
	f.payload, f.err = decodeResponse(rsp, true)
	f.fire()
}
