package stream

import (
	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
)

// Ops is the operation vector dispatched for a stream. A nil entry means the
// operation is unsupported on this handle.
type Ops struct {
	Open  func(obj any) int
	Read  func(obj any, p []byte) int
	Write func(obj any, p []byte) int
	Close func(obj any) int
}

// FCB is a file control block: one refcounted kernel-side stream handle.
// Descriptor table entries point at FCBs; an FCB is released and its stream
// closed when the last reference is dropped.
type FCB struct {
	refcount int
	obj      any
	ops      *Ops
}

// Obj returns the stream object bound to the handle.
func (f *FCB) Obj() any { return f.obj }

// Ops returns the handle's operation vector.
func (f *FCB) Ops() *Ops { return f.ops }

// Refcount reports the handle's current reference count. Caller must hold
// the kernel lock.
func (f *FCB) Refcount() int { return f.refcount }

// SetStream binds a stream object and its operation vector to the handle.
func (f *FCB) SetStream(obj any, ops *Ops) {
	f.obj = obj
	f.ops = ops
}

// Table is the global file control block reservation table.
type Table struct {
	fcbs [defs.MaxFCB]FCB
	free []*FCB
}

// NewTable creates a table with every FCB on the free list.
func NewTable() *Table {
	t := &Table{}
	t.free = make([]*FCB, 0, defs.MaxFCB)
	for i := defs.MaxFCB - 1; i >= 0; i-- {
		t.free = append(t.free, &t.fcbs[i])
	}
	return t
}

// Free reports how many FCBs remain unreserved. Caller must hold the kernel
// lock.
func (t *Table) Free() int { return len(t.free) }

// Reserve atomically allocates num FCBs and num free slots in the given
// descriptor table. On success the slots point at the new FCBs, each with a
// reference count of one. On failure nothing is mutated.
func (t *Table) Reserve(fidt []*FCB, num int) ([]defs.Fid, []*FCB, bool) {
	if num <= 0 || len(t.free) < num {
		return nil, nil, false
	}

	fids := make([]defs.Fid, 0, num)
	for i := range fidt {
		if fidt[i] == nil {
			fids = append(fids, defs.Fid(i))
			if len(fids) == num {
				break
			}
		}
	}
	if len(fids) < num {
		return nil, nil, false
	}

	fcbs := make([]*FCB, num)
	for i := 0; i < num; i++ {
		f := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		f.refcount = 1
		f.obj = nil
		f.ops = nil
		fcbs[i] = f
		fidt[fids[i]] = f
	}
	return fids, fcbs, true
}

// Get resolves a descriptor to its FCB, or nil if the descriptor is out of
// range or unassigned.
func Get(fidt []*FCB, fid defs.Fid) *FCB {
	if fid < 0 || int(fid) >= len(fidt) {
		return nil
	}
	return fidt[fid]
}

// Incref adds a reference to the handle.
func (t *Table) Incref(f *FCB) {
	f.refcount++
}

// Decref drops a reference. When the count reaches zero the stream's Close
// operation runs and the FCB returns to the free list; Decref then returns
// Close's status. Otherwise it returns 0.
func (t *Table) Decref(f *FCB) int {
	f.refcount--
	if f.refcount > 0 {
		return 0
	}

	ret := 0
	if f.ops != nil && f.ops.Close != nil {
		ret = f.ops.Close(f.obj)
	}
	f.obj = nil
	f.ops = nil
	t.free = append(t.free, f)
	return ret
}
