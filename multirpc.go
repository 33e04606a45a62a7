package clustermsg

import (
	"fmt"
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/nodeset"
	"github.com/dermesser/clustermsg/proto"
)

/*
Called once per target of a MultiRPC. errnum is the target's error number (0 on success); payload
is nil on failure or if the response carried none. A returned error counts as a failure of that
target and replaces errnum as its error number, also when the target had already failed.
*/
type MultiRPCCallback func(nodeid uint32, errnum syscall.Errno, payload []byte) error

/*
Send in to topic on every rank in ranks (e.g. "0-3,7"), keeping at most fanout requests
outstanding; fanout <= 0 sends to all targets at once. cb (may be nil) is invoked exactly once per
target.

A failing target does not stop the others. If any target failed, the returned RequestError
carries the largest error number observed.

Responses for other exchanges of this handle that arrive meanwhile are put back and remain
available to their receivers.
*/
func (h *Handle) MultiRPC(ranks string, fanout int, topic string, in []byte, cb MultiRPCCallback) error {
	ns, err := nodeset.ParseMax(ranks, h.size)
	if err != nil {
		return newRequestError(STATUS_INVALID_ARGUMENT, syscall.EINVAL, err)
	}
	if topic == "" {
		return newRequestError(STATUS_INVALID_ARGUMENT, syscall.EINVAL, fmt.Errorf("empty topic"))
	}

	count := ns.Count()
	if fanout <= 0 || fanout > count {
		fanout = count
	}

	base, err := h.tags.Alloc(count)
	if err != nil {
		return newRequestError(STATUS_RESOURCE_EXHAUSTED, syscall.EAGAIN, err)
	}
	defer h.tags.Free(base, count)

	m := &multiRPC{h: h, base: base, nodeids: ns.Ranks(), received: make([]bool, count), cb: cb}
	defer m.returnAliens()

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.Logf(log.LOGLEVEL_DEBUG, "[%d] MultiRPC %s to %s, fanout %d, tags %d..%d", h.rank, topic, ns, fanout, base, base+uint32(count)-1)
	}

	ntx, nrx := 0, 0
	for ntx < count || nrx < count {
		for ntx < count && ntx-nrx < fanout {
			tag := base + uint32(ntx)
			nodeid := m.nodeids[ntx]
			ntx++

			if err := h.Send(nodeid, topic, in, tag, true); err != nil {
				m.received[ntx-1] = true
				nrx++
				errnum := ErrnumOf(err)
				log.Log(log.LOGLEVEL_WARNINGS, "MultiRPC: send to", nodeid, "failed:", err)
				status := STATUS_TRANSPORT_ERROR
				if cb != nil {
					if err := cb(nodeid, errnum, nil); err != nil {
						errnum = ErrnumOf(err)
						status = statusOf(err, STATUS_TRANSPORT_ERROR)
					}
				}
				m.fail(status, errnum)
			}
		}
		for nrx < count && (ntx-nrx == fanout || ntx == count) {
			rsp, err := h.Recv(Match{Type: proto.MSGTYPE_RESPONSE}, false)
			if err != nil {
				log.Log(log.LOGLEVEL_ERRORS, "MultiRPC: receive failed with", count-nrx, "responses outstanding:", err)
				return transportError(err)
			}
			if m.accept(rsp) {
				nrx++
			}
		}
	}

	if m.errnum != 0 {
		return newRequestError(m.status, m.errnum, fmt.Errorf("%d of %d targets failed: %s", m.nfailed, count, m.errnum.Error()))
	}
	return nil
}

type multiRPC struct {
	h        *Handle
	base     uint32
	nodeids  []uint32
	received []bool
	cb       MultiRPCCallback
	// Responses for other exchanges
	nomatch []*proto.Message

	status  Status
	errnum  syscall.Errno
	nfailed int
}

// Keeps the failure with the largest error number.
func (m *multiRPC) fail(status Status, errnum syscall.Errno) {
	m.nfailed++
	if errnum > m.errnum {
		m.errnum = errnum
		m.status = status
	}
}

// Handles one response. Returns true if it answered a target that had not been answered yet.
func (m *multiRPC) accept(rsp *proto.Message) bool {
	if rsp.Matchtag < m.base || rsp.Matchtag >= m.base+uint32(len(m.nodeids)) {
		m.nomatch = append(m.nomatch, rsp)
		return false
	}
	i := rsp.Matchtag - m.base
	if m.received[i] {
		log.Log(log.LOGLEVEL_WARNINGS, "MultiRPC: dropping duplicate response from", m.nodeids[i])
		return false
	}
	m.received[i] = true
	nodeid := m.nodeids[i]

	status := STATUS_REMOTE_ERROR
	errnum := syscall.Errno(rsp.Errnum)
	var payload []byte
	if errnum == 0 {
		payload = rsp.GetPayload()
	}
	if m.cb != nil {
		if err := m.cb(nodeid, errnum, payload); err != nil {
			errnum = ErrnumOf(err)
			status = statusOf(err, STATUS_REMOTE_ERROR)
		}
	}
	if errnum != 0 {
		log.Log(log.LOGLEVEL_WARNINGS, "MultiRPC: rank", nodeid, "failed:", errnum.Error())
		m.fail(status, errnum)
	}
	return true
}

func (m *multiRPC) returnAliens() {
	for _, msg := range m.nomatch {
		m.h.Requeue(msg)
	}
	m.nomatch = nil
}
