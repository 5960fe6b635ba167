package proc

import (
	"container/list"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/sched"
	"github.com/akislouk/operating-systems-project/internal/kernel/stream"
)

// PState is the process lifecycle state.
type PState int

const (
	Free PState = iota
	Alive
	Zombie
)

// String returns the string representation of the state.
func (s PState) String() string {
	switch s {
	case Free:
		return "free"
	case Alive:
		return "alive"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// PCB is a process control block. Pid 0 is the idle process, pid 1 is the
// init process; both are parentless. Every other process is linked into its
// parent's children list, and additionally into the parent's exited list
// once it becomes a zombie.
type PCB struct {
	pid    defs.Pid
	state  PState
	parent *PCB

	children *list.List // live and zombie children, as *PCB
	exited   *list.List // zombie children awaiting reaping, as *PCB

	childNode  *list.Element // our node in parent.children
	exitedNode *list.Element // our node in parent.exited

	childExit sched.Cond

	fidt [defs.MaxFileid]*stream.FCB

	hasMain    bool
	mainThread *sched.TCB
	args       []byte
	exitval    int

	threadCount int        // live threads
	threads     *list.List // live plus exited-but-unjoined threads, as *PTCB
}

// Pid returns the process id.
func (p *PCB) Pid() defs.Pid { return p.pid }

// PPid returns the parent's pid, NoProc for parentless processes.
func (p *PCB) PPid() defs.Pid {
	if p.parent == nil {
		return defs.NoProc
	}
	return p.parent.pid
}

// State returns the process state. Caller must hold the kernel lock.
func (p *PCB) State() PState { return p.state }

// ThreadCount reports the number of live threads. Caller must hold the
// kernel lock.
func (p *PCB) ThreadCount() int { return p.threadCount }

// Threads reports the length of the thread record list, live and
// exited-but-unjoined. Caller must hold the kernel lock.
func (p *PCB) Threads() int { return p.threads.Len() }

// Args returns the process's argument bytes.
func (p *PCB) Args() []byte { return p.args }

// ExitVal returns the recorded process exit value. Meaningful once the
// process is a zombie.
func (p *PCB) ExitVal() int { return p.exitval }

// SetExitVal records the process exit value.
func (p *PCB) SetExitVal(v int) { p.exitval = v }

// FIDT exposes the process's file descriptor table for stream dispatch and
// handle reservation. Caller must hold the kernel lock.
func (p *PCB) FIDT() []*stream.FCB { return p.fidt[:] }

// ThreadEntry is the code a new kernel thread runs, outside the kernel
// lock. It must end the thread through the exit path and never return.
type ThreadEntry func(p *PCB, t *PTCB)

// Table is the process table with its free list, plus the thread handle
// table that keeps Tids opaque and stable.
type Table struct {
	s    *sched.Sched
	fcbs *stream.Table

	pt        [defs.MaxProc]PCB
	freeList  []*PCB
	procCount int

	threadTab map[defs.Tid]*PTCB
	nextTid   defs.Tid

	initDone chan struct{}
}

// NewTable builds the process table with every slot on the free list, pid 0
// on top.
func NewTable(s *sched.Sched, fcbs *stream.Table) *Table {
	t := &Table{
		s:         s,
		fcbs:      fcbs,
		threadTab: make(map[defs.Tid]*PTCB),
		nextTid:   1,
		initDone:  make(chan struct{}),
	}
	t.freeList = make([]*PCB, 0, defs.MaxProc)
	for pid := defs.MaxProc - 1; pid >= 0; pid-- {
		p := &t.pt[pid]
		p.pid = defs.Pid(pid)
		p.state = Free
		p.children = list.New()
		p.exited = list.New()
		p.threads = list.New()
		t.freeList = append(t.freeList, p)
	}
	return t
}

// Get returns the PCB for pid, or nil if the pid is out of range or the
// slot is free.
func (t *Table) Get(pid defs.Pid) *PCB {
	if pid < 0 || pid >= defs.MaxProc {
		return nil
	}
	p := &t.pt[pid]
	if p.state == Free {
		return nil
	}
	return p
}

// Count reports the number of non-free processes. Caller must hold the
// kernel lock.
func (t *Table) Count() int { return t.procCount }

// InitDone returns a channel closed when the init process's last thread
// exits.
func (t *Table) InitDone() <-chan struct{} { return t.initDone }

func (t *Table) acquirePCB() *PCB {
	if len(t.freeList) == 0 {
		return nil
	}
	p := t.freeList[len(t.freeList)-1]
	t.freeList = t.freeList[:len(t.freeList)-1]
	p.state = Alive
	t.procCount++
	return p
}

func (t *Table) releasePCB(p *PCB) {
	p.state = Free
	p.parent = nil
	p.hasMain = false
	p.mainThread = nil
	p.args = nil
	p.exitval = 0
	t.freeList = append(t.freeList, p)
	t.procCount--
}

// Exec creates a new process. Processes with pid 0 or 1 are parentless;
// every other process is a child of parent and inherits its descriptor
// table with an extra reference per handle. If entry is non-nil a main
// thread is spawned and woken to run it. Returns the new pid, or NoProc
// when the table is exhausted. Caller must hold the kernel lock.
func (t *Table) Exec(parent *PCB, hasMain bool, args []byte, entry ThreadEntry) defs.Pid {
	newproc := t.acquirePCB()
	if newproc == nil {
		return defs.NoProc
	}

	if newproc.pid <= 1 {
		newproc.parent = nil
	} else {
		newproc.parent = parent
		newproc.childNode = parent.children.PushFront(newproc)

		for i := range parent.fidt {
			newproc.fidt[i] = parent.fidt[i]
			if newproc.fidt[i] != nil {
				t.fcbs.Incref(newproc.fidt[i])
			}
		}
	}

	newproc.hasMain = hasMain
	if args != nil {
		newproc.args = make([]byte, len(args))
		copy(newproc.args, args)
	} else {
		newproc.args = nil
	}

	// The thread is woken last, once the PCB is fully initialized, because
	// it may run immediately.
	if entry != nil {
		ptcb := t.newThread(newproc, newproc.args)
		newproc.mainThread = t.spawn(newproc, ptcb, entry)
		t.s.Wakeup(newproc.mainThread)
	}

	return newproc.pid
}

func (t *Table) cleanupZombie(child *PCB, status *int) {
	if status != nil {
		*status = child.exitval
	}
	if child.childNode != nil {
		child.parent.children.Remove(child.childNode)
		child.childNode = nil
	}
	if child.exitedNode != nil {
		child.parent.exited.Remove(child.exitedNode)
		child.exitedNode = nil
	}
	t.releasePCB(child)
}

func (t *Table) waitSpecificChild(cur *PCB, cpid defs.Pid, status *int) defs.Pid {
	if cpid < 0 || cpid >= defs.MaxProc {
		return defs.NoProc
	}
	child := t.Get(cpid)
	if child == nil || child.parent != cur {
		return defs.NoProc
	}

	for child.state == Alive {
		t.s.Wait(&cur.childExit, sched.ReasonUser)
	}
	t.cleanupZombie(child, status)
	return cpid
}

func (t *Table) waitAnyChild(cur *PCB, status *int) defs.Pid {
	for {
		if cur.children.Len() == 0 {
			return defs.NoProc
		}
		if cur.exited.Len() > 0 {
			break
		}
		t.s.Wait(&cur.childExit, sched.ReasonUser)
	}

	child := cur.exited.Front().Value.(*PCB)
	cpid := child.pid
	t.cleanupZombie(child, status)
	return cpid
}

// WaitChild reaps a zombie child. With cpid == NoProc it waits for any
// child, failing with NoProc if the caller has none; otherwise it waits for
// the specific child, failing with NoProc if cpid is out of range or not a
// direct child. On success the child's exit value is published through
// status (when non-nil), its PCB returns to the free list, and its pid is
// returned. Caller must hold the kernel lock.
func (t *Table) WaitChild(cur *PCB, cpid defs.Pid, status *int) defs.Pid {
	if cpid != defs.NoProc {
		return t.waitSpecificChild(cur, cpid, status)
	}
	return t.waitAnyChild(cur, status)
}
