package clustermsg

import (
	"fmt"
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"

	pb "github.com/gogo/protobuf/proto"
)

/*
Blocking RPC. Sends in (nil for no payload) to topic on nodeid and waits for the response.

A response with a non-zero error number fails with STATUS_REMOTE_ERROR and that number. A
response without payload yields a nil result.
*/
func (h *Handle) RPC(nodeid uint32, topic string, in []byte) ([]byte, error) {
	return h.rpc(nodeid, topic, in, true)
}

// Like RPC, for calls that are not expected to return data: a response carrying a payload
// fails with STATUS_PROTOCOL_ERROR.
func (h *Handle) RPCNoResponse(nodeid uint32, topic string, in []byte) error {
	_, err := h.rpc(nodeid, topic, in, false)
	return err
}

// RPC with protobuf messages. req may be nil (no payload); rep may be nil if no result is wanted.
// rep is reset if the response carries no payload.
func (h *Handle) RPCProto(nodeid uint32, topic string, req, rep pb.Message) error {
	var in []byte
	if req != nil {
		var err error
		if in, err = proto.Marshal(req); err != nil {
			return newRequestError(STATUS_INVALID_ARGUMENT, syscall.EINVAL, err)
		}
	}

	out, err := h.rpc(nodeid, topic, in, rep != nil)
	if err != nil || rep == nil {
		return err
	}
	if out == nil {
		rep.Reset()
		return nil
	}
	if err = proto.Unmarshal(out, rep); err != nil {
		return newRequestError(STATUS_PROTOCOL_ERROR, syscall.EPROTO, err)
	}
	return nil
}

func (h *Handle) rpc(nodeid uint32, topic string, in []byte, want_out bool) ([]byte, error) {
	tag, err := h.tags.Alloc(1)
	if err != nil {
		return nil, newRequestError(STATUS_RESOURCE_EXHAUSTED, syscall.EAGAIN, err)
	}
	defer h.tags.Free(tag, 1)

	var token string
	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		token = log.GetLogToken()
		log.Logf(log.LOGLEVEL_DEBUG, "[%s] RPC %s to %d, tag %d", token, topic, nodeid, tag)
	}

	if err = h.Send(nodeid, topic, in, tag, true); err != nil {
		return nil, err
	}

	rsp, err := h.Recv(Match{Type: proto.MSGTYPE_RESPONSE, Matchtag: tag}, false)
	if err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Could not receive response to", topic, ":", err)
		return nil, transportError(err)
	}
	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.Logf(log.LOGLEVEL_DEBUG, "[%s] response errnum=%d payload=%v", token, rsp.Errnum, rsp.HasPayload())
	}

	return decodeResponse(rsp, want_out)
}

// Checks the error number first, then the payload against the caller's interest in a result.
func decodeResponse(rsp *proto.Message, want_out bool) ([]byte, error) {
	if rsp.Type != proto.MSGTYPE_RESPONSE {
		return nil, newRequestError(STATUS_PROTOCOL_ERROR, syscall.EPROTO, fmt.Errorf("unexpected message type %s", rsp.Type))
	}
	if rsp.Errnum != 0 {
		return nil, newRequestError(STATUS_REMOTE_ERROR, syscall.Errno(rsp.Errnum), nil)
	}
	payload := rsp.GetPayload()
	if want_out {
		return payload, nil
	}
	if payload != nil {
		return nil, newRequestError(STATUS_PROTOCOL_ERROR, syscall.EPROTO, fmt.Errorf("unexpected payload in response to %s", rsp.Topic))
	}
	return nil, nil
}
