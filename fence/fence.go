/*
Package fence aggregates the operation batches of a fixed number of participants into one
collective commit.

A Fence accumulates contributions until count == nprocs (complete). It never acts on the
transition itself: the owner checks CountReached() after each contribution, commits the merged
operations and answers the stored requests.
*/
package fence

import (
	"fmt"
	"syscall"

	"github.com/dermesser/clustermsg/proto"
)

// Commit the fence's operations without merging them with other pending commits.
const FLAG_NO_MERGE = 0x01

type Fence struct {
	name   string
	nprocs int
	count  int
	flags  int
	// operations of all participants, batches in arrival order
	ops [][]byte
	// payload-less copies of the participants' requests
	requests []*proto.Message
	aux_int  int
}

// Create a fence for nprocs participants. name must be non-empty and nprocs > 0 (EINVAL).
func New(name string, nprocs int, flags int) (*Fence, error) {
	if name == "" || nprocs <= 0 {
		return nil, fmt.Errorf("fence %q, nprocs %d: %w", name, nprocs, syscall.EINVAL)
	}
	return &Fence{name: name, nprocs: nprocs, flags: flags}, nil
}

/*
Add one participant's operations. Fails with EOVERFLOW, leaving the fence unchanged, if all
nprocs participants have already contributed.
*/
func (f *Fence) AddRequestOps(ops [][]byte) error {
	if f.count == f.nprocs {
		return fmt.Errorf("fence %q already has %d contributions: %w", f.name, f.nprocs, syscall.EOVERFLOW)
	}
	for _, op := range ops {
		f.ops = append(f.ops, append([]byte(nil), op...))
	}
	f.count++
	return nil
}

// Keep a copy of msg (without payload) to respond to once the fence is complete.
func (f *Fence) AddRequestCopy(msg *proto.Message) error {
	if msg == nil {
		return syscall.EINVAL
	}
	f.requests = append(f.requests, msg.Copy(false))
	return nil
}

func (f *Fence) CountReached() bool {
	return f.count == f.nprocs
}

/*
Call cb for each stored request copy, in the order they were added. Stops at the first error
and returns it.
*/
func (f *Fence) IterRequestCopies(cb func(msg *proto.Message) error) error {
	for _, msg := range f.requests {
		if err := cb(msg); err != nil {
			return err
		}
	}
	return nil
}

type SnapshotError struct {
	// Position of the request copy
	Index int
	Err   error
}

func (e SnapshotError) Error() string {
	return fmt.Sprintf("request %d: %s", e.Index, e.Err)
}

// Like IterRequestCopies, but calls cb for every copy and returns all failures.
func (f *Fence) IterAllRequestCopies(cb func(msg *proto.Message) error) []SnapshotError {
	var errs []SnapshotError
	for i, msg := range f.requests {
		if err := cb(msg); err != nil {
			errs = append(errs, SnapshotError{Index: i, Err: err})
		}
	}
	return errs
}

// Release operations and request copies. The fence may be destroyed in any state.
func (f *Fence) Destroy() {
	f.ops = nil
	f.requests = nil
}

func (f *Fence) Name() string {
	return f.name
}

func (f *Fence) Nprocs() int {
	return f.nprocs
}

// Number of participants that have contributed.
func (f *Fence) Count() int {
	return f.count
}

func (f *Fence) Flags() int {
	return f.flags
}

// All operations, in submission order. The slice must not be modified.
func (f *Fence) Ops() [][]byte {
	return f.ops
}

func (f *Fence) NumRequests() int {
	return len(f.requests)
}

// Caller-owned integer, e.g. the commit sequence number.
func (f *Fence) AuxInt() int {
	return f.aux_int
}

func (f *Fence) SetAuxInt(v int) {
	f.aux_int = v
}
