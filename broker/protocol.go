package broker

import (
	"fmt"
)

// Framing of messages on the broker's ROUTER socket.
// A peer (DEALER) sends ["", payload]; the ROUTER prepends the peer identity, so the broker
// sees and sends [identity, "", payload].

type peerMessage struct {
	identity []byte
	payload  []byte
}

func newPeerMessage(identity []byte, payload []byte) peerMessage {
	return peerMessage{identity: identity, payload: payload}
}

func parsePeerMessage(msg [][]byte) (peerMessage, error) {
	if len(msg) != 3 {
		return peerMessage{}, fmt.Errorf("peer message has %d != 3 frames", len(msg))
	}
	if len(msg[1]) != 0 {
		return peerMessage{}, fmt.Errorf("peer message lacks empty delimiter frame")
	}
	return peerMessage{identity: msg[0], payload: msg[2]}, nil
}

func (msg peerMessage) serializePeerMessage() [][]byte {
	frames := make([][]byte, 3)
	frames[0] = msg.identity
	frames[1] = []byte{}
	frames[2] = msg.payload
	return frames
}
