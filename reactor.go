package clustermsg

import (
	"errors"
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/transport"

	pb "github.com/gogo/protobuf/proto"
)

// Type of a function that is called when a request for its topic arrives.
type Handler func(h *Handle, msg *proto.Message)

/*
Register handler for requests with exactly this topic, e.g. "kvs.fence". Registering an existing
topic replaces the old handler.
*/
func (h *Handle) RegisterHandler(topic string, handler Handler) {
	if _, ok := h.handlers[topic]; ok {
		log.Log(log.LOGLEVEL_WARNINGS, "Replacing handler for", topic)
	}
	h.handlers[topic] = handler
	log.Log(log.LOGLEVEL_INFO, "Registered handler:", topic)
}

func (h *Handle) UnregisterHandler(topic string) {
	delete(h.handlers, topic)
}

/*
Receive one message and act on it: responses fulfill their future, requests are passed to their
handler. Requests without handler are answered with ENOSYS. With nonblock,
transport.ErrWouldBlock is returned if nothing is pending.
*/
func (h *Handle) Dispatch(nonblock bool) error {
	msg, err := h.Recv(Match{}, nonblock)
	if err != nil {
		return err
	}

	switch msg.Type {
	case proto.MSGTYPE_RESPONSE:
		if f, ok := h.futures[msg.Matchtag]; ok {
			h.fulfill(f, msg)
		} else {
			log.Log(log.LOGLEVEL_WARNINGS, "Dropping unexpected response", msg.Topic, "tag", msg.Matchtag)
		}
	case proto.MSGTYPE_REQUEST:
		if handler, ok := h.handlers[msg.Topic]; ok {
			handler(h, msg)
		} else {
			log.Log(log.LOGLEVEL_WARNINGS, "No handler for", msg.Topic)
			if err := h.RespondError(msg, syscall.ENOSYS); err != nil {
				log.Log(log.LOGLEVEL_WARNINGS, "Could not respond to", msg.Topic, ":", err)
			}
		}
	default:
		log.Log(log.LOGLEVEL_DEBUG, "Ignoring", msg.Type, "message")
	}
	return nil
}

// Dispatch messages until Stop() is called from a handler or continuation, or the transport is closed.
func (h *Handle) Run() error {
	h.stopped = false
	for !h.stopped {
		if err := h.Dispatch(false); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (h *Handle) Stop() {
	h.stopped = true
}

// Respond to req with payload (nil for none).
func (h *Handle) Respond(req *proto.Message, payload []byte) error {
	rsp := proto.NewResponse(req)
	rsp.SetPayload(payload)
	return h.SendMsg(rsp)
}

func (h *Handle) RespondProto(req *proto.Message, payload pb.Message) error {
	buf, err := proto.Marshal(payload)
	if err != nil {
		return h.RespondError(req, syscall.EPROTO)
	}
	return h.Respond(req, buf)
}

func (h *Handle) RespondError(req *proto.Message, errnum syscall.Errno) error {
	if errnum == 0 {
		errnum = syscall.EIO
	}
	return h.SendMsg(proto.NewErrorResponse(req, int32(errnum)))
}

/*
Register "<service>.ping", which answers every request with its own payload. Peers use it to check
that a service is reachable.
*/
func (h *Handle) RegisterPing(service string) {
	h.RegisterHandler(service+".ping", func(h *Handle, msg *proto.Message) {
		if err := h.Respond(msg, msg.GetPayload()); err != nil {
			log.Log(log.LOGLEVEL_WARNINGS, "Could not answer ping:", err)
		}
	})
}
