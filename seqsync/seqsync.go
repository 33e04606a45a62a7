/*
Package seqsync keeps requests that wait for a commit sequence number to be reached.
*/
package seqsync

import (
	"fmt"
	"syscall"

	"github.com/dermesser/clustermsg/proto"
)

// Called with the stored copy of the waiting request.
type Callback func(msg *proto.Message)

type waiter struct {
	seq int
	msg *proto.Message
	cb  Callback
}

// Waiters ordered by sequence number; waiters for the same number keep their insertion order.
type List struct {
	waiters []waiter
}

/*
Add a waiter for seq. current is the sequence number reached so far; a waiter for a number that
has already been reached is refused with EINVAL (the caller should answer directly).
*/
func (l *List) Add(seq int, msg *proto.Message, cb Callback, current int) error {
	if msg == nil || cb == nil || current >= seq {
		return fmt.Errorf("sync for %d at %d: %w", seq, current, syscall.EINVAL)
	}
	i := len(l.waiters)
	for i > 0 && l.waiters[i-1].seq > seq {
		i--
	}
	l.waiters = append(l.waiters, waiter{})
	copy(l.waiters[i+1:], l.waiters[i:])
	l.waiters[i] = waiter{seq: seq, msg: msg.Copy(true), cb: cb}
	return nil
}

// Run and remove the waiters for sequence numbers <= current, or all of them. Returns the number run.
func (l *List) Process(current int, all bool) int {
	n := 0
	for len(l.waiters) > 0 && (all || l.waiters[0].seq <= current) {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		w.cb(w.msg)
		n++
	}
	return n
}

// Remove the waiters whose request satisfies match, without running them.
func (l *List) RemoveMsg(match func(msg *proto.Message) bool) int {
	kept := l.waiters[:0]
	for _, w := range l.waiters {
		if !match(w.msg) {
			kept = append(kept, w)
		}
	}
	n := len(l.waiters) - len(kept)
	for i := len(kept); i < len(l.waiters); i++ {
		l.waiters[i] = waiter{}
	}
	l.waiters = kept
	return n
}

func (l *List) Len() int {
	return len(l.waiters)
}
