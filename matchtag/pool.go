/*
Package matchtag implements the pool of correlation ids ("matchtags") owned by one handle.

Tags are handed out in contiguous blocks so that a fan-out over N destinations can map a
response back to its destination by offset (tag - base). The sentinel proto.MATCHTAG_NONE (0)
is never handed out.

A Pool is not safe for concurrent use; it belongs to exactly one handle.
*/
package matchtag

import (
	"errors"
	"math/bits"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
)

const DEFAULT_POOL_SIZE uint32 = 1 << 16

var ErrExhausted = errors.New("matchtag pool exhausted")

type Pool struct {
	// bit i set <=> tag i is in use. Bit 0 (MATCHTAG_NONE) is permanently set.
	used  []uint64
	size  uint32
	avail uint32
}

// Create a pool handing out tags 1..size-1.
func NewPool(size uint32) *Pool {
	if size < 2 {
		size = 2
	}
	p := &Pool{used: make([]uint64, (size+63)/64), size: size, avail: size - 1}
	p.used[0] |= 1
	return p
}

func (p *Pool) Size() uint32 {
	return p.size
}

// Number of tags that are currently free.
func (p *Pool) Avail() uint32 {
	return p.avail
}

func (p *Pool) isUsed(tag uint32) bool {
	return p.used[tag/64]&(1<<(tag%64)) != 0
}

func (p *Pool) set(tag uint32, inuse bool) {
	if inuse {
		p.used[tag/64] |= 1 << (tag % 64)
	} else {
		p.used[tag/64] &^= 1 << (tag % 64)
	}
}

/*
Reserve count contiguous tags and return the first one. Nothing is reserved if the pool
cannot satisfy the request; in that case MATCHTAG_NONE and ErrExhausted are returned.
*/
func (p *Pool) Alloc(count int) (uint32, error) {
	if count <= 0 || uint32(count) > p.avail {
		return proto.MATCHTAG_NONE, ErrExhausted
	}

	run := uint32(0)
	for tag := uint32(1); tag < p.size; tag++ {
		// skip full words quickly
		if tag%64 == 0 && p.used[tag/64] == ^uint64(0) {
			run = 0
			tag += 63
			continue
		}
		if p.isUsed(tag) {
			run = 0
			continue
		}
		run++
		if run == uint32(count) {
			base := tag - run + 1
			for t := base; t <= tag; t++ {
				p.set(t, true)
			}
			p.avail -= run
			return base, nil
		}
	}
	return proto.MATCHTAG_NONE, ErrExhausted
}

// Return a block previously obtained from Alloc. Tags that are not in use are skipped (and logged).
func (p *Pool) Free(base uint32, count int) {
	if base == proto.MATCHTAG_NONE || count <= 0 {
		return
	}
	for i := 0; i < count; i++ {
		tag := base + uint32(i)
		if tag >= p.size || !p.isUsed(tag) {
			log.Log(log.LOGLEVEL_WARNINGS, "Freeing matchtag that is not allocated:", tag)
			continue
		}
		p.set(tag, false)
		p.avail++
	}
}

// Whether tag is currently allocated.
func (p *Pool) InUse(tag uint32) bool {
	if tag == proto.MATCHTAG_NONE || tag >= p.size {
		return false
	}
	return p.isUsed(tag)
}

// Number of tags in use, counted from the bitmap. Used by tests to cross-check Avail().
func (p *Pool) countUsed() uint32 {
	n := 0
	for _, w := range p.used {
		n += bits.OnesCount64(w)
	}
	return uint32(n) - 1
}
