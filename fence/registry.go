package fence

import (
	"syscall"

	"github.com/zhangyunhao116/skipmap"
)

// Open fences by name, ordered by name.
type Registry struct {
	fences *skipmap.FuncMap[string, *Fence]
}

func NewRegistry() *Registry {
	return &Registry{fences: skipmap.NewFunc[string, *Fence](func(a, b string) bool {
		return a < b
	})}
}

func (r *Registry) Lookup(name string) (*Fence, bool) {
	return r.fences.Load(name)
}

// Add f; EEXIST if a fence with that name is open.
func (r *Registry) Add(f *Fence) error {
	if _, loaded := r.fences.LoadOrStore(f.name, f); loaded {
		return syscall.EEXIST
	}
	return nil
}

// Remove and destroy the named fence.
func (r *Registry) Remove(name string) bool {
	f, ok := r.fences.Load(name)
	if !ok {
		return false
	}
	r.fences.Delete(name)
	f.Destroy()
	return true
}

func (r *Registry) Len() int {
	return r.fences.Len()
}

// Calls cb for each open fence in name order until cb returns false.
func (r *Registry) Range(cb func(f *Fence) bool) {
	r.fences.Range(func(_ string, f *Fence) bool {
		return cb(f)
	})
}
