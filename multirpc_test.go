package clustermsg

import (
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/dermesser/clustermsg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Answers every request with its destination rank as payload.
func answerRank(rq *proto.Message) []*proto.Message {
	rsp := proto.NewResponse(rq)
	rsp.SetPayload([]byte(fmt.Sprint(rq.Nodeid)))
	return []*proto.Message{rsp}
}

type callbackLog struct {
	calls   map[uint32]int
	errnums map[uint32]syscall.Errno
	order   []uint32
}

func newCallbackLog() *callbackLog {
	return &callbackLog{calls: make(map[uint32]int), errnums: make(map[uint32]syscall.Errno)}
}

func (l *callbackLog) cb(nodeid uint32, errnum syscall.Errno, payload []byte) error {
	l.calls[nodeid]++
	l.errnums[nodeid] = errnum
	l.order = append(l.order, nodeid)
	if errnum == 0 && string(payload) != fmt.Sprint(nodeid) {
		return fmt.Errorf("payload %q from rank %d", payload, nodeid)
	}
	return nil
}

func TestMultiRPCWindow(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = answerRank
	h := openFake(t, ft)
	l := newCallbackLog()

	require.NoError(t, h.MultiRPC("0-2", 2, "svc.ping", nil, l.cb))

	// ranks 0 and 1 go out at once, rank 2 only after a response was consumed
	assert.Equal(t, 0, ft.consumedAtSend[0])
	assert.Equal(t, 0, ft.consumedAtSend[1])
	assert.GreaterOrEqual(t, ft.consumedAtSend[2], 1)
	assert.LessOrEqual(t, ft.maxOutstanding, 2)

	assert.Equal(t, map[uint32]int{0: 1, 1: 1, 2: 1}, l.calls)
	assert.True(t, allFree(h))
	assert.Equal(t, 0, h.Pending())
}

func TestMultiRPCWindowWithSendFailures(t *testing.T) {
	ft := newFakeTransport(0, 16)
	ft.respond = answerRank
	ft.failSend = func(rq *proto.Message) error {
		if rq.Nodeid%4 == 1 {
			return syscall.EHOSTUNREACH
		}
		return nil
	}
	h := openFake(t, ft)
	l := newCallbackLog()

	err := h.MultiRPC("0-15", 3, "svc.ping", []byte("x"), l.cb)
	require.Error(t, err)
	assert.True(t, HasStatus(err, STATUS_TRANSPORT_ERROR))
	assert.Equal(t, syscall.EHOSTUNREACH, ErrnumOf(err))

	assert.LessOrEqual(t, ft.maxOutstanding, 3)
	assert.Len(t, l.calls, 16)
	for r := uint32(0); r < 16; r++ {
		assert.Equal(t, 1, l.calls[r], "rank %d", r)
		if r%4 == 1 {
			assert.Equal(t, syscall.EHOSTUNREACH, l.errnums[r])
		} else {
			assert.Equal(t, syscall.Errno(0), l.errnums[r])
		}
	}
	assert.True(t, allFree(h))
}

func TestMultiRPCUnboundedFanout(t *testing.T) {
	ft := newFakeTransport(0, 5)
	ft.respond = answerRank
	h := openFake(t, ft)
	l := newCallbackLog()

	require.NoError(t, h.MultiRPC("[0-4]", 0, "svc.ping", nil, l.cb))
	assert.Equal(t, 5, ft.maxOutstanding)
	assert.Len(t, l.order, 5)
}

func TestMultiRPCKeepsAlienResponses(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = answerRank
	h := openFake(t, ft)

	ft.inject(alienResponse(9000), proto.NewRequest(0, "svc.incoming", nil))
	require.NoError(t, h.MultiRPC("0-2", 1, "svc.ping", nil, nil))

	msg, err := h.Recv(Match{Type: proto.MSGTYPE_RESPONSE, Matchtag: 9000}, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("alien"), msg.GetPayload())

	msg, err = h.Recv(Match{Type: proto.MSGTYPE_REQUEST}, true)
	require.NoError(t, err)
	assert.Equal(t, "svc.incoming", msg.Topic)
}

func TestMultiRPCCombinedErrnumIsLargest(t *testing.T) {
	codes := map[uint32]syscall.Errno{0: syscall.EPERM, 1: syscall.EINVAL, 2: syscall.ENOENT, 3: 0}
	ft := newFakeTransport(0, 4)
	ft.respond = func(rq *proto.Message) []*proto.Message {
		if codes[rq.Nodeid] != 0 {
			return failWith(int32(codes[rq.Nodeid]))(rq)
		}
		return answerRank(rq)
	}
	h := openFake(t, ft)
	l := newCallbackLog()

	err := h.MultiRPC("0-3", 2, "svc.ping", nil, l.cb)
	require.Error(t, err)
	assert.True(t, HasStatus(err, STATUS_REMOTE_ERROR))
	assert.Equal(t, syscall.EINVAL, ErrnumOf(err))
	assert.Len(t, l.order, 4)
	for r, code := range codes {
		assert.Equal(t, code, l.errnums[r])
	}
}

func TestMultiRPCCallbackError(t *testing.T) {
	ft := newFakeTransport(0, 2)
	ft.respond = answerWith([]byte("garbage"))
	h := openFake(t, ft)
	l := newCallbackLog()

	err := h.MultiRPC("0,1", 2, "svc.ping", nil, l.cb)
	require.Error(t, err)
	assert.Equal(t, syscall.EIO, ErrnumOf(err))
	assert.Len(t, l.order, 2)
}

func TestMultiRPCDuplicateResponse(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = func(rq *proto.Message) []*proto.Message {
		rsps := answerRank(rq)
		if rq.Nodeid == 0 {
			rsps = append(rsps, answerRank(rq)...)
		}
		return rsps
	}
	h := openFake(t, ft)
	l := newCallbackLog()

	require.NoError(t, h.MultiRPC("0-2", 1, "svc.ping", nil, l.cb))
	assert.Equal(t, map[uint32]int{0: 1, 1: 1, 2: 1}, l.calls)
}

func TestMultiRPCInvalidRankSet(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = answerRank
	h := openFake(t, ft)

	for _, ranks := range []string{"0-3", "", "a-b", "2-1", "0-4294967295", "0,30000000"} {
		start := time.Now()
		err := h.MultiRPC(ranks, 2, "svc.ping", nil, nil)
		assert.True(t, HasStatus(err, STATUS_INVALID_ARGUMENT), ranks)
		assert.Equal(t, syscall.EINVAL, ErrnumOf(err))
		assert.Less(t, time.Since(start), time.Second, ranks)
	}
	assert.Empty(t, ft.sent)
	assert.True(t, allFree(h))
}

func TestMultiRPCPoolExhausted(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = answerRank
	h := openFake(t, ft, WithPoolSize(3))

	err := h.MultiRPC("0-2", 2, "svc.ping", nil, nil)
	assert.True(t, HasStatus(err, STATUS_RESOURCE_EXHAUSTED))
	assert.Equal(t, syscall.EAGAIN, ErrnumOf(err))
	assert.Empty(t, ft.sent)
}

func TestMultiRPCReceiveFailure(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = func(rq *proto.Message) []*proto.Message {
		if rq.Nodeid == 2 {
			return nil
		}
		return answerRank(rq)
	}
	h := openFake(t, ft)
	ft.inject(alienResponse(9000))
	l := newCallbackLog()

	err := h.MultiRPC("0-2", 3, "svc.ping", nil, l.cb)
	require.Error(t, err)
	assert.True(t, HasStatus(err, STATUS_TRANSPORT_ERROR))
	assert.Len(t, l.order, 2)
	assert.True(t, allFree(h))

	_, err = h.Recv(Match{Matchtag: 9000}, true)
	assert.NoError(t, err)
}

func TestMultiRPCCallbackErrorReplacesErrnum(t *testing.T) {
	ft := newFakeTransport(0, 3)
	ft.respond = func(rq *proto.Message) []*proto.Message {
		if rq.Nodeid == 1 {
			return failWith(int32(syscall.EPERM))(rq)
		}
		return answerRank(rq)
	}
	ft.failSend = func(rq *proto.Message) error {
		if rq.Nodeid == 2 {
			return syscall.EHOSTUNREACH
		}
		return nil
	}
	h := openFake(t, ft)

	var seen []syscall.Errno
	err := h.MultiRPC("0-2", 3, "svc.ping", nil, func(nodeid uint32, errnum syscall.Errno, payload []byte) error {
		seen = append(seen, errnum)
		if errnum != 0 {
			return syscall.ENOSPC
		}
		return nil
	})
	require.Error(t, err)
	assert.ElementsMatch(t, []syscall.Errno{0, syscall.EPERM, syscall.EHOSTUNREACH}, seen)
	// ENOSPC replaced both EPERM and EHOSTUNREACH
	assert.Equal(t, syscall.ENOSPC, ErrnumOf(err))
	assert.Contains(t, err.Error(), "2 of 3 targets failed")
	assert.True(t, allFree(h))
}
