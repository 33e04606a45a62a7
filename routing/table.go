/*
Package routing decides where a message goes next. It is shared by the in-process bus and the
ZeroMQ broker, which only differ in how they deliver to an identity.
*/
package routing

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/dermesser/clustermsg/proto"
)

type Peer struct {
	Identity string
	Rank     uint32
	Services []string
}

func (p *Peer) provides(service string) bool {
	for _, s := range p.Services {
		if s == service {
			return true
		}
	}
	return false
}

// The table is not safe for concurrent use; callers serialize access.
type Table struct {
	peers []*Peer
	index map[string]*Peer
}

func NewTable() *Table {
	return &Table{index: make(map[string]*Peer)}
}

// Register a peer, or update rank and services of a known identity (keeping its position).
func (t *Table) Add(p Peer) {
	if old, ok := t.index[p.Identity]; ok {
		old.Rank = p.Rank
		old.Services = append([]string(nil), p.Services...)
		return
	}
	np := &Peer{Identity: p.Identity, Rank: p.Rank, Services: append([]string(nil), p.Services...)}
	t.peers = append(t.peers, np)
	t.index[p.Identity] = np
}

func (t *Table) Remove(identity string) bool {
	if _, ok := t.index[identity]; !ok {
		return false
	}
	delete(t.index, identity)
	for i, p := range t.peers {
		if p.Identity == identity {
			t.peers = append(t.peers[:i], t.peers[i+1:]...)
			break
		}
	}
	return true
}

func (t *Table) Lookup(identity string) (Peer, bool) {
	p, ok := t.index[identity]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

func (t *Table) Len() int {
	return len(t.peers)
}

// The service part of a topic, e.g. "kvs" for "kvs.fence".
func ServiceOf(topic string) string {
	if i := strings.IndexByte(topic, '.'); i >= 0 {
		return topic[:i]
	}
	return topic
}

/*
Route determines the identity msg is to be delivered to. from is the identity of the peer that
sent it.

Requests go to the first registered peer on the destination rank (any rank for NODEID_ANY) that
provides the topic's service; if msg is route-enabled, from is pushed onto its route. Responses
pop their last hop. Route modifies msg in place.

Errors are syscall.Errno values suitable for an error response: ENOSYS if no peer provides the
service, EHOSTUNREACH if a response has no route left, EPROTO for other message types.
*/
func (t *Table) Route(from string, msg *proto.Message) (string, error) {
	switch msg.Type {
	case proto.MSGTYPE_REQUEST:
		service := ServiceOf(msg.Topic)
		for _, p := range t.peers {
			if msg.Nodeid != proto.NODEID_ANY && p.Rank != msg.Nodeid {
				continue
			}
			if !p.provides(service) {
				continue
			}
			if msg.IsRouted() {
				msg.PushRoute(from)
			}
			return p.Identity, nil
		}
		return "", syscall.ENOSYS
	case proto.MSGTYPE_RESPONSE:
		hop, ok := msg.PopRoute()
		if !ok {
			return "", syscall.EHOSTUNREACH
		}
		return hop, nil
	default:
		return "", syscall.EPROTO
	}
}

func (t *Table) String() string {
	var sb strings.Builder
	for _, p := range t.peers {
		fmt.Fprintf(&sb, "%s rank=%d services=%v\n", p.Identity, p.Rank, p.Services)
	}
	return sb.String()
}
