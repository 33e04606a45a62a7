/*
Package proto contains the messages exchanged between handles, brokers and
services. Messages are encoded as protocol buffers (see message.proto for the
schema); the Go types carry the protobuf struct tags, so they are marshalled by
the reflection-based gogo/protobuf codec.
*/
package proto

import (
	"fmt"

	pb "github.com/gogo/protobuf/proto"
)

type MsgType int32

const (
	MSGTYPE_NONE      MsgType = 0
	MSGTYPE_REQUEST   MsgType = 1
	MSGTYPE_RESPONSE  MsgType = 2
	MSGTYPE_KEEPALIVE MsgType = 4
)

var MsgType_name = map[int32]string{
	0: "NONE",
	1: "REQUEST",
	2: "RESPONSE",
	4: "KEEPALIVE",
}

var MsgType_value = map[string]int32{
	"NONE":      0,
	"REQUEST":   1,
	"RESPONSE":  2,
	"KEEPALIVE": 4,
}

func (t MsgType) String() string {
	if s, ok := MsgType_name[int32(t)]; ok {
		return s
	}
	return fmt.Sprintf("MsgType(%d)", int32(t))
}

// Message flags
const (
	FLAG_TOPIC   uint32 = 0x01
	FLAG_PAYLOAD uint32 = 0x02
	FLAG_ROUTE   uint32 = 0x04
)

const (
	// Destination "any rank"; the broker picks the nearest provider of the topic's service.
	NODEID_ANY uint32 = 0xFFFFFFFF
	// Sentinel for "no correlation / not yet assigned".
	MATCHTAG_NONE uint32 = 0
)

// Keepalive status values
const (
	KEEPALIVE_HELLO   int32 = 1
	KEEPALIVE_GOODBYE int32 = 2
)

/*
A Message is either a REQUEST, a RESPONSE or a KEEPALIVE.

Route is a stack of hop identities. Every broker forwarding a route-enabled request pushes the
identity of the peer it received the request from; responses pop the stack to find their way back.
*/
type Message struct {
	Type     MsgType  `protobuf:"varint,1,opt,name=type,proto3,enum=cmb.MsgType" json:"type,omitempty"`
	Flags    uint32   `protobuf:"varint,2,opt,name=flags,proto3" json:"flags,omitempty"`
	Topic    string   `protobuf:"bytes,3,opt,name=topic,proto3" json:"topic,omitempty"`
	Nodeid   uint32   `protobuf:"varint,4,opt,name=nodeid,proto3" json:"nodeid,omitempty"`
	Matchtag uint32   `protobuf:"varint,5,opt,name=matchtag,proto3" json:"matchtag,omitempty"`
	Errnum   int32    `protobuf:"varint,6,opt,name=errnum,proto3" json:"errnum,omitempty"`
	Status   int32    `protobuf:"varint,7,opt,name=status,proto3" json:"status,omitempty"`
	Payload  []byte   `protobuf:"bytes,8,opt,name=payload,proto3" json:"payload,omitempty"`
	Route    []string `protobuf:"bytes,9,rep,name=route,proto3" json:"route,omitempty"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return pb.CompactTextString(m) }
func (*Message) ProtoMessage()    {}

func init() {
	pb.RegisterEnum("cmb.MsgType", MsgType_name, MsgType_value)
}

// Create a request to nodeid. A nil payload means "no payload"; an empty non-nil slice is an empty payload.
func NewRequest(nodeid uint32, topic string, payload []byte) *Message {
	msg := &Message{Type: MSGTYPE_REQUEST, Nodeid: nodeid, Matchtag: MATCHTAG_NONE}
	msg.SetTopic(topic)
	msg.SetPayload(payload)
	return msg
}

// Create a response addressed along the route of request. The payload is not copied.
func NewResponse(request *Message) *Message {
	rsp := request.Copy(false)
	rsp.Type = MSGTYPE_RESPONSE
	rsp.Errnum = 0
	return rsp
}

func NewErrorResponse(request *Message, errnum int32) *Message {
	rsp := NewResponse(request)
	rsp.Errnum = errnum
	return rsp
}

func EncodeKeepalive(errnum, status int32) *Message {
	return &Message{Type: MSGTYPE_KEEPALIVE, Errnum: errnum, Status: status}
}

func DecodeKeepalive(msg *Message) (errnum, status int32, err error) {
	if msg.Type != MSGTYPE_KEEPALIVE {
		return 0, 0, fmt.Errorf("not a keepalive message: %s", msg.Type)
	}
	return msg.Errnum, msg.Status, nil
}

/*
Copy returns an independent deep copy. If with_payload is false, the payload is dropped.
The copy shares no memory with msg, so it remains valid after msg (or the connection it came
from) is gone.
*/
func (msg *Message) Copy(with_payload bool) *Message {
	cpy := *msg
	cpy.Payload = nil
	cpy.Flags &^= FLAG_PAYLOAD
	if with_payload && msg.HasPayload() {
		cpy.SetPayload(append([]byte{}, msg.Payload...))
	}
	if msg.Route != nil {
		cpy.Route = make([]string, len(msg.Route))
		copy(cpy.Route, msg.Route)
	}
	return &cpy
}

func (msg *Message) SetTopic(topic string) {
	msg.Topic = topic
	if topic != "" {
		msg.Flags |= FLAG_TOPIC
	} else {
		msg.Flags &^= FLAG_TOPIC
	}
}

func (msg *Message) HasPayload() bool {
	return msg.Flags&FLAG_PAYLOAD != 0
}

// Set the payload; nil clears it.
func (msg *Message) SetPayload(payload []byte) {
	if payload == nil {
		msg.Payload = nil
		msg.Flags &^= FLAG_PAYLOAD
		return
	}
	msg.Payload = payload
	msg.Flags |= FLAG_PAYLOAD
}

// Returns the payload, or nil if the message has none.
func (msg *Message) GetPayload() []byte {
	if !msg.HasPayload() {
		return nil
	}
	if msg.Payload == nil {
		return []byte{}
	}
	return msg.Payload
}

func (msg *Message) EnableRoute() {
	msg.Flags |= FLAG_ROUTE
	if msg.Route == nil {
		msg.Route = []string{}
	}
}

func (msg *Message) IsRouted() bool {
	return msg.Flags&FLAG_ROUTE != 0
}

func (msg *Message) PushRoute(hop string) {
	msg.Route = append(msg.Route, hop)
}

// Removes and returns the last hop. ok is false if the route is empty.
func (msg *Message) PopRoute() (hop string, ok bool) {
	if len(msg.Route) == 0 {
		return "", false
	}
	hop = msg.Route[len(msg.Route)-1]
	msg.Route = msg.Route[:len(msg.Route)-1]
	return hop, true
}

func (msg *Message) RouteLen() int {
	return len(msg.Route)
}

func Marshal(msg pb.Message) ([]byte, error) {
	return pb.Marshal(msg)
}

func Unmarshal(buf []byte, msg pb.Message) error {
	return pb.Unmarshal(buf, msg)
}

// Decode a serialized Message.
func ParseMessage(buf []byte) (*Message, error) {
	msg := new(Message)
	if err := pb.Unmarshal(buf, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
