/*
Package zmqconn connects a Handle to a broker over ZeroMQ. The connection is a DEALER socket
whose identity is a random UUID; that identity is the hop the broker records in message routes.
*/
package zmqconn

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
	smgr "github.com/dermesser/clustermsg/securitymanager"
	"github.com/dermesser/clustermsg/transport"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

// How often a blocking Recv checks whether the connection has been closed.
const RECV_POLL_INTERVAL = 50 * time.Millisecond

// Time to flush the goodbye message on Close.
const CLOSE_LINGER = 200 * time.Millisecond

/*
A Conn implements transport.Transport. The socket is only touched with the lock held, so Close()
may be called while another goroutine is blocked in Recv().
*/
type Conn struct {
	lock     sync.Mutex
	sock     *zmq.Socket
	poller   *zmq.Poller
	identity string
	rank     uint32
	size     uint32
	closed   bool
}

var _ transport.Transport = (*Conn)(nil)

/*
Connect to the broker at endpoint as rank (of size), announcing services. security_manager may be
nil for unsecured connections.
*/
func Dial(endpoint string, rank, size uint32, services []string, security_manager *smgr.PeerSecurityManager) (*Conn, error) {
	if rank >= size {
		return nil, fmt.Errorf("rank %d out of range (size %d): %w", rank, size, syscall.EINVAL)
	}
	c := &Conn{identity: uuid.NewString(), rank: rank, size: size}

	var err error
	if c.sock, err = zmq.NewSocket(zmq.DEALER); err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Error when creating Dealer socket:", err.Error())
		return nil, err
	}
	if err = c.sock.SetIdentity(c.identity); err != nil {
		c.sock.Close()
		return nil, err
	}
	if err = security_manager.ApplyToPeerSocket(c.sock); err != nil {
		c.sock.Close()
		return nil, err
	}
	if err = c.sock.Connect(endpoint); err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Error when connecting to", endpoint, ":", err.Error())
		c.sock.Close()
		return nil, err
	}
	c.poller = zmq.NewPoller()
	c.poller.Add(c.sock, zmq.POLLIN)

	hello, err := proto.Marshal(&proto.Hello{Rank: rank, Services: services})
	if err != nil {
		c.sock.Close()
		return nil, err
	}
	ka := proto.EncodeKeepalive(0, proto.KEEPALIVE_HELLO)
	ka.SetPayload(hello)
	if err = c.Send(ka); err != nil {
		c.sock.Close()
		return nil, err
	}

	log.Log(log.LOGLEVEL_INFO, "Connected to", endpoint, "as", c.identity, "rank", rank)
	return c, nil
}

func (c *Conn) Identity() string {
	return c.identity
}

func (c *Conn) Rank() uint32 {
	return c.rank
}

func (c *Conn) Size() uint32 {
	return c.size
}

// Converts ZeroMQ errors to syscall.Errno values.
func convertError(err error) error {
	if errno := zmq.AsErrno(err); errno != 0 {
		return syscall.Errno(errno)
	}
	return err
}

func (c *Conn) Send(msg *proto.Message) error {
	buf, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return transport.ErrClosed
	}
	// [ "", payload ]
	if _, err = c.sock.SendMessage([]byte{}, buf); err != nil {
		return convertError(err)
	}
	return nil
}

func (c *Conn) Recv(nonblock bool) (*proto.Message, error) {
	for {
		frames, err := c.tryRecv()
		if err == nil {
			if len(frames) != 2 || len(frames[0]) != 0 {
				log.Log(log.LOGLEVEL_WARNINGS, "Dropped message with", len(frames), "frames")
				continue
			}
			return proto.ParseMessage(frames[1])
		}
		if err != transport.ErrWouldBlock || nonblock {
			return nil, err
		}
		if err = c.wait(); err != nil {
			return nil, err
		}
	}
}

func (c *Conn) tryRecv() ([][]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return nil, transport.ErrClosed
	}
	frames, err := c.sock.RecvMessageBytes(zmq.DONTWAIT)
	if err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
			return nil, transport.ErrWouldBlock
		}
		return nil, convertError(err)
	}
	return frames, nil
}

// Wait up to RECV_POLL_INTERVAL for input.
func (c *Conn) wait() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return transport.ErrClosed
	}
	if _, err := c.poller.Poll(RECV_POLL_INTERVAL); err != nil && zmq.AsErrno(err) != zmq.Errno(syscall.EINTR) {
		return convertError(err)
	}
	return nil
}

// Say goodbye to the broker and close the socket.
func (c *Conn) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if buf, err := proto.Marshal(proto.EncodeKeepalive(0, proto.KEEPALIVE_GOODBYE)); err == nil {
		c.sock.SendMessage([]byte{}, buf)
	}
	c.sock.SetLinger(CLOSE_LINGER)

	log.Log(log.LOGLEVEL_INFO, "Disconnected", c.identity)
	return c.sock.Close()
}
