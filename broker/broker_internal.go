package broker

import (
	"fmt"
	"syscall"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/routing"

	zmq "github.com/pebbe/zmq4"
)

var MAGIC_STOP_STRING []byte = []byte("___STOPBROKER___")

/*
The routing loop: one poller over the ROUTER socket and the control socket. All routing state is
touched only here (and read by Peers() under the lock).
*/
func (b *Broker) loop() {
	defer func() {
		b.lock.Lock()
		b.running = false
		b.lock.Unlock()
		close(b.done)
	}()

	poller := zmq.NewPoller()
	poller.Add(b.router, zmq.POLLIN)
	poller.Add(b.control_loop, zmq.POLLIN)

	for {
		polled, err := poller.Poll(-1)

		if err != nil {
			log.Log(log.LOGLEVEL_ERRORS, "Polling error in broker:", err.Error())
			if zmq.AsErrno(err) == zmq.ETERM {
				return
			}
			continue
		}
		for _, sock := range polled {
			switch s := sock.Socket; s {
			case b.router:
				b.handlePeerMessage()
			case b.control_loop:
				b.control_loop.RecvMessageBytes(0)
				return
			}
		}
	}
}

func (b *Broker) handlePeerMessage() {
	// [identity, "", payload]
	frames, err := b.router.RecvMessageBytes(0)
	if err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Error when receiving from router:", err.Error())
		return
	}

	pm, err := parsePeerMessage(frames)
	if err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Dropped malformed message:", err)
		return
	}
	msg, err := proto.ParseMessage(pm.payload)
	if err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Dropped message; could not decode protobuf:", err.Error())
		return
	}
	from := string(pm.identity)

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.Logf(log.LOGLEVEL_DEBUG, "Broker: %s from %s topic=%s nodeid=%d tag=%d", msg.Type, from, msg.Topic, msg.Nodeid, msg.Matchtag)
	}

	if msg.Type == proto.MSGTYPE_KEEPALIVE {
		b.handleKeepalive(from, msg)
		return
	}

	b.lock.Lock()
	to, err := b.table.Route(from, msg)
	b.lock.Unlock()

	if err != nil {
		b.bounce(from, msg, err.(syscall.Errno))
		return
	}
	b.forward(from, to, msg)
}

func (b *Broker) handleKeepalive(from string, msg *proto.Message) {
	_, status, err := proto.DecodeKeepalive(msg)
	if err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Bad keepalive from", from, ":", err)
		return
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	switch status {
	case proto.KEEPALIVE_HELLO:
		hello := new(proto.Hello)
		if err := proto.Unmarshal(msg.GetPayload(), hello); err != nil {
			log.Log(log.LOGLEVEL_WARNINGS, "Bad hello from", from, ":", err)
			return
		}
		if hello.Rank >= b.size {
			log.Log(log.LOGLEVEL_WARNINGS, "Ignoring hello from", from, ": rank", hello.Rank, "out of range")
			return
		}
		b.table.Add(routing.Peer{Identity: from, Rank: hello.Rank, Services: hello.Services})
		log.Log(log.LOGLEVEL_INFO, "Peer", from, "joined on rank", hello.Rank, "providing", hello.Services)
	case proto.KEEPALIVE_GOODBYE:
		if b.table.Remove(from) {
			log.Log(log.LOGLEVEL_INFO, "Peer", from, "left")
		}
	default:
		log.Log(log.LOGLEVEL_DEBUG, "Keepalive from", from, "status", status)
	}
}

func (b *Broker) forward(from, to string, msg *proto.Message) {
	err := b.send(to, msg)
	if err == nil {
		return
	}
	if zmq.AsErrno(err) == zmq.EHOSTUNREACH {
		// routing is mandatory; fails when the peer has disconnected without goodbye
		log.Log(log.LOGLEVEL_WARNINGS, "Could not route message to", to, ", removing peer")
		b.lock.Lock()
		b.table.Remove(to)
		b.lock.Unlock()
		if msg.Type == proto.MSGTYPE_REQUEST {
			// the failed request carries the sender as last hop
			msg.PopRoute()
			b.bounce(from, msg, syscall.EHOSTUNREACH)
		}
		return
	}
	log.Log(log.LOGLEVEL_ERRORS, "Error when sending to", to, ":", err.Error())
}

// Answer an unroutable request with an error response. Anything else is dropped.
func (b *Broker) bounce(from string, msg *proto.Message, errnum syscall.Errno) {
	if msg.Type != proto.MSGTYPE_REQUEST || !msg.IsRouted() {
		log.Log(log.LOGLEVEL_WARNINGS, "Dropping unroutable", msg.Type, msg.Topic, "from", from, ":", errnum.Error())
		return
	}
	log.Log(log.LOGLEVEL_WARNINGS, "Bouncing", msg.Topic, "for rank", msg.Nodeid, "from", from, ":", errnum.Error())

	if err := b.send(from, proto.NewErrorResponse(msg, int32(errnum))); err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Could not bounce to", from, ":", err.Error())
	}
}

func (b *Broker) send(to string, msg *proto.Message) error {
	buf, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("could not encode message: %w", err)
	}
	_, err = b.router.SendMessage(newPeerMessage([]byte(to), buf).serializePeerMessage())
	return err
}
