package proto

import (
	"bytes"
	"testing"
)

func TestPayloadFlag(t *testing.T) {
	msg := NewRequest(3, "kvs.fence", nil)

	if msg.HasPayload() || msg.GetPayload() != nil {
		t.Fatal("nil payload must mean no payload")
	}

	msg.SetPayload([]byte{})

	if !msg.HasPayload() || msg.GetPayload() == nil {
		t.Fatal("empty payload must still be a payload")
	}
}

func TestEmptyPayloadSurvivesWire(t *testing.T) {
	msg := NewRequest(0, "sched.quiescent", []byte{})

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseMessage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !back.HasPayload() || len(back.GetPayload()) != 0 {
		t.Fatal("empty payload was lost:", back)
	}
	if back.Topic != "sched.quiescent" || back.Type != MSGTYPE_REQUEST {
		t.Fatal("bad header:", back)
	}
}

func TestRouteStack(t *testing.T) {
	msg := NewRequest(NODEID_ANY, "a.b", nil)
	msg.EnableRoute()
	msg.PushRoute("one")
	msg.PushRoute("two")

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	msg, err = ParseMessage(buf)
	if err != nil {
		t.Fatal(err)
	}

	rsp := NewResponse(msg)
	if rsp.Type != MSGTYPE_RESPONSE || !rsp.IsRouted() {
		t.Fatal("bad response header:", rsp)
	}

	if hop, ok := rsp.PopRoute(); !ok || hop != "two" {
		t.Fatal("expected last hop first, got", hop)
	}
	if hop, ok := rsp.PopRoute(); !ok || hop != "one" {
		t.Fatal("expected first hop, got", hop)
	}
	if _, ok := rsp.PopRoute(); ok {
		t.Fatal("route should be empty")
	}
	if msg.RouteLen() != 2 {
		t.Fatal("popping the response route changed the request")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	msg := NewRequest(1, "kvs.fence", []byte("ops"))
	msg.EnableRoute()
	msg.PushRoute("peer")

	full := msg.Copy(true)
	bare := msg.Copy(false)

	msg.Payload[0] = 'X'
	msg.Route[0] = "other"

	if !bytes.Equal(full.GetPayload(), []byte("ops")) {
		t.Error("payload aliased:", string(full.GetPayload()))
	}
	if full.Route[0] != "peer" || bare.Route[0] != "peer" {
		t.Error("route aliased")
	}
	if bare.HasPayload() {
		t.Error("payload-less copy has a payload")
	}
}

func TestKeepalive(t *testing.T) {
	msg := EncodeKeepalive(0, KEEPALIVE_GOODBYE)

	errnum, status, err := DecodeKeepalive(msg)
	if err != nil || errnum != 0 || status != KEEPALIVE_GOODBYE {
		t.Fatal("bad keepalive:", errnum, status, err)
	}

	if _, _, err = DecodeKeepalive(NewRequest(0, "x", nil)); err == nil {
		t.Fatal("decoded a request as keepalive")
	}
}

func TestFenceRequestCodec(t *testing.T) {
	rq := &FenceRequest{Name: "epoch7", Nprocs: 3, Ops: [][]byte{[]byte("putA"), []byte("putB")}}

	buf, err := Marshal(rq)
	if err != nil {
		t.Fatal(err)
	}
	back := new(FenceRequest)
	if err = Unmarshal(buf, back); err != nil {
		t.Fatal(err)
	}
	if back.Name != "epoch7" || back.Nprocs != 3 || len(back.Ops) != 2 || string(back.Ops[1]) != "putB" {
		t.Fatal("bad decode:", back)
	}
}
