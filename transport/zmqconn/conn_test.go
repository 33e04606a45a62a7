package zmqconn

import (
	"syscall"
	"testing"

	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/transport"
	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func router(t *testing.T) (*zmq.Socket, string) {
	endpoint := "inproc://zmqconn-test-" + uuid.NewString()
	sock, err := zmq.NewSocket(zmq.ROUTER)
	require.NoError(t, err)
	require.NoError(t, sock.Bind(endpoint))
	t.Cleanup(func() { sock.Close() })
	return sock, endpoint
}

// Receive one message from a peer; returns the peer identity and the decoded message.
func recvFrom(t *testing.T, sock *zmq.Socket) (string, *proto.Message) {
	frames, err := sock.RecvMessageBytes(0)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	require.Empty(t, frames[1])
	msg, err := proto.ParseMessage(frames[2])
	require.NoError(t, err)
	return string(frames[0]), msg
}

func TestHelloAndGoodbye(t *testing.T) {
	sock, endpoint := router(t)

	c, err := Dial(endpoint, 2, 4, []string{"kvs", "job"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), c.Rank())
	assert.Equal(t, uint32(4), c.Size())

	id, msg := recvFrom(t, sock)
	assert.Equal(t, c.Identity(), id)
	_, status, err := proto.DecodeKeepalive(msg)
	require.NoError(t, err)
	assert.Equal(t, proto.KEEPALIVE_HELLO, status)

	hello := new(proto.Hello)
	require.NoError(t, proto.Unmarshal(msg.GetPayload(), hello))
	assert.Equal(t, uint32(2), hello.Rank)
	assert.Equal(t, []string{"kvs", "job"}, hello.Services)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, msg = recvFrom(t, sock)
	_, status, err = proto.DecodeKeepalive(msg)
	require.NoError(t, err)
	assert.Equal(t, proto.KEEPALIVE_GOODBYE, status)

	_, err = c.Recv(true)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, c.Send(proto.NewRequest(0, "kvs.get", nil)), transport.ErrClosed)
}

func TestSendRecv(t *testing.T) {
	sock, endpoint := router(t)

	c, err := Dial(endpoint, 0, 1, nil, nil)
	require.NoError(t, err)
	defer c.Close()
	recvFrom(t, sock)

	_, err = c.Recv(true)
	assert.ErrorIs(t, err, transport.ErrWouldBlock)

	rq := proto.NewRequest(0, "kvs.get", []byte("key"))
	rq.Matchtag = 9
	require.NoError(t, c.Send(rq))

	id, got := recvFrom(t, sock)
	assert.Equal(t, "kvs.get", got.Topic)
	assert.Equal(t, []byte("key"), got.GetPayload())

	rsp := proto.NewResponse(got)
	rsp.SetPayload([]byte("value"))
	buf, err := proto.Marshal(rsp)
	require.NoError(t, err)
	_, err = sock.SendMessage(id, "", buf)
	require.NoError(t, err)

	back, err := c.Recv(false)
	require.NoError(t, err)
	assert.Equal(t, proto.MSGTYPE_RESPONSE, back.Type)
	assert.Equal(t, uint32(9), back.Matchtag)
	assert.Equal(t, []byte("value"), back.GetPayload())
}

func TestBlockedRecvReturnsOnClose(t *testing.T) {
	_, endpoint := router(t)

	c, err := Dial(endpoint, 0, 1, nil, nil)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := c.Recv(false)
		done <- err
	}()
	require.NoError(t, c.Close())
	assert.ErrorIs(t, <-done, transport.ErrClosed)
}

func TestDialErrors(t *testing.T) {
	_, err := Dial("inproc://nowhere", 1, 1, nil, nil)
	assert.ErrorIs(t, err, syscall.EINVAL)

	_, err = Dial("nosuchproto://x", 0, 1, nil, nil)
	assert.Error(t, err)
}
