/*
Package transport defines the connection a Handle sends and receives messages on.

Implementations: transport/loop (in-process bus, used by tests and single-process setups) and
transport/zmqconn (a ZeroMQ DEALER socket connected to a broker).
*/
package transport

import (
	"errors"

	"github.com/dermesser/clustermsg/proto"
)

var (
	// Returned by a non-blocking Recv if no message is available.
	ErrWouldBlock = errors.New("transport: no message available")
	// Returned by every operation after Close().
	ErrClosed = errors.New("transport: closed")
)

/*
A Transport delivers messages between ranks. Send returns as soon as the message has been handed
off; there is no delivery confirmation. Recv(false) blocks until a message arrives or the
transport is closed.

Messages passed to Send must not be modified by the caller afterwards; messages returned by Recv
belong to the caller.
*/
type Transport interface {
	Send(msg *proto.Message) error
	Recv(nonblock bool) (*proto.Message, error)
	// Rank of the local endpoint.
	Rank() uint32
	// Number of ranks in the instance.
	Size() uint32
	Close() error
}
