package proc

import (
	"container/list"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/sched"
)

// PTCB is a per-thread control record. It is freed only once the thread has
// exited and no joiner holds a reference; the Tid stays valid until then, so
// every joiner observes the exit before the record goes away.
type PTCB struct {
	id    defs.Tid
	owner *PCB
	tcb   *sched.TCB

	args []byte

	exitval  int
	exited   bool
	detached bool // monotonic, never cleared
	exitCV   sched.Cond

	refcount int

	node *list.Element // our node in owner.threads
}

// ID returns the thread's opaque handle.
func (t *PTCB) ID() defs.Tid { return t.id }

// Args returns the thread's argument bytes.
func (t *PTCB) Args() []byte { return t.args }

// Exited reports whether the thread has exited. Caller must hold the kernel
// lock.
func (t *PTCB) Exited() bool { return t.exited }

// Detached reports whether the thread has been detached. Caller must hold
// the kernel lock.
func (t *PTCB) Detached() bool { return t.detached }

// newThread allocates a PTCB with a fresh Tid and links it into the owning
// process.
func (t *Table) newThread(owner *PCB, args []byte) *PTCB {
	pt := &PTCB{
		id:    t.nextTid,
		owner: owner,
		args:  args,
	}
	t.nextTid++
	t.threadTab[pt.id] = pt
	pt.node = owner.threads.PushBack(pt)
	owner.threadCount++
	return pt
}

// spawn creates the scheduler thread backing ptcb. The entry runs outside
// the kernel lock once the thread is woken.
func (t *Table) spawn(owner *PCB, ptcb *PTCB, entry ThreadEntry) *sched.TCB {
	tcb := t.s.Spawn(owner, func(*sched.TCB) {
		entry(owner, ptcb)
	})
	ptcb.tcb = tcb
	return tcb
}

// freeThread unlinks an exited PTCB from its process and retires its Tid.
func (t *Table) freeThread(pt *PTCB) {
	if pt.node != nil {
		pt.owner.threads.Remove(pt.node)
		pt.node = nil
	}
	delete(t.threadTab, pt.id)
}

// LookupThread resolves a Tid, returning nil for the NoThread sentinel or a
// retired handle.
func (t *Table) LookupThread(tid defs.Tid) *PTCB {
	if tid == defs.NoThread {
		return nil
	}
	return t.threadTab[tid]
}

// CreateThread adds a thread to cur running entry and wakes it. Returns the
// new thread's handle. Caller must hold the kernel lock.
func (t *Table) CreateThread(cur *PCB, args []byte, entry ThreadEntry) defs.Tid {
	ptcb := t.newThread(cur, args)
	t.s.Wakeup(t.spawn(cur, ptcb, entry))
	return ptcb.id
}

// JoinThread blocks until the target thread exits, then publishes its exit
// value through exitval (when non-nil). It fails if the target is not a
// thread of cur, is the caller itself, or is detached, including a detach
// that lands while the caller is waiting. The last joiner to leave an
// exited thread frees its record. Caller must hold the kernel lock.
func (t *Table) JoinThread(cur *PCB, curT *PTCB, tid defs.Tid, exitval *int) int {
	target := t.LookupThread(tid)
	if target == nil || target.owner != cur || target == curT || target.detached {
		return -1
	}

	target.refcount++
	for !target.exited && !target.detached {
		t.s.Wait(&target.exitCV, sched.ReasonUser)
	}
	target.refcount--

	if target.detached {
		if target.refcount == 0 && target.exited {
			t.freeThread(target)
		}
		return -1
	}

	if exitval != nil {
		*exitval = target.exitval
	}
	if target.refcount == 0 {
		t.freeThread(target)
	}
	return 0
}

// DetachThread marks the target detached and wakes all current joiners,
// which observe the detach and fail. Fails if the target is not a thread of
// cur or has already exited. Caller must hold the kernel lock.
func (t *Table) DetachThread(cur *PCB, tid defs.Tid) int {
	target := t.LookupThread(tid)
	if target == nil || target.owner != cur || target.exited {
		return -1
	}
	target.detached = true
	t.s.Broadcast(&target.exitCV)
	return 0
}

// ExitThread ends the calling thread. If it is the last thread of the
// process: init drains its children; any other process re-parents its
// children to init, splices its exited list onto init's, queues itself on
// its parent's exited list, and wakes the parent. Either way the process
// then releases its descriptor table and argument storage and becomes a
// zombie. In all cases the thread
// record is marked exited, joiners are woken, and the scheduler thread
// sleeps permanently. Never returns. Caller must hold the kernel lock.
func (t *Table) ExitThread(cur *PCB, curT *PTCB, exitval int) {
	cur.threadCount--

	if cur.threadCount == 0 {
		if cur.pid == 1 {
			// Init drains children before leaving.
			for t.WaitChild(cur, defs.NoProc, nil) != defs.NoProc {
			}
		} else {
			initp := t.Get(1)
			if initp != nil {
				for el := cur.children.Front(); el != nil; el = cur.children.Front() {
					child := el.Value.(*PCB)
					cur.children.Remove(el)
					child.parent = initp
					child.childNode = initp.children.PushFront(child)
				}
				if cur.exited.Len() > 0 {
					for el := cur.exited.Front(); el != nil; el = cur.exited.Front() {
						z := el.Value.(*PCB)
						cur.exited.Remove(el)
						z.exitedNode = initp.exited.PushBack(z)
					}
					t.s.Broadcast(&initp.childExit)
				}
			}
			if cur.parent != nil {
				cur.exitedNode = cur.parent.exited.PushFront(cur)
				t.s.Broadcast(&cur.parent.childExit)
			}
		}

		cur.args = nil
		for i := range cur.fidt {
			if cur.fidt[i] != nil {
				t.fcbs.Decref(cur.fidt[i])
				cur.fidt[i] = nil
			}
		}
		cur.mainThread = nil
		cur.state = Zombie

		// Retire every other thread record of the dead process; they are
		// all exited and no joiner can arrive anymore.
		for el := cur.threads.Front(); el != nil; {
			next := el.Next()
			if pt := el.Value.(*PTCB); pt != curT {
				t.freeThread(pt)
			}
			el = next
		}

		if cur.pid == 1 {
			close(t.initDone)
		}
	}

	curT.exited = true
	curT.exitval = exitval
	t.s.Broadcast(&curT.exitCV)
	if curT.refcount == 0 && (curT.detached || cur.state == Zombie) {
		t.freeThread(curT)
	}

	t.s.Sleep(curT.tcb, sched.StateExited, sched.ReasonUser)
}
