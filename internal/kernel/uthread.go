package kernel

import (
	"go.uber.org/zap"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/pipe"
	"github.com/akislouk/operating-systems-project/internal/kernel/proc"
	"github.com/akislouk/operating-systems-project/internal/kernel/stream"
)

// PipeEnds carries the two descriptors of a freshly created pipe.
type PipeEnds struct {
	Read  defs.Fid
	Write defs.Fid
}

// UThread is the per-thread system call handle. Every task receives one;
// all kernel entry points are its methods. Every call except ThreadSelf
// acquires the kernel lock. A handle must only be used from its own thread.
type UThread struct {
	k    *Kernel
	pcb  *proc.PCB
	ptcb *proc.PTCB
}

// GetPid returns the calling process's pid.
func (u *UThread) GetPid() defs.Pid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("getpid")
	return u.pcb.Pid()
}

// GetPPid returns the parent's pid, NoProc for parentless processes.
func (u *UThread) GetPPid() defs.Pid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("getppid")
	return u.pcb.PPid()
}

// Exec creates a child process running task and returns its pid, or NoProc
// when the process table is exhausted. The child inherits the caller's open
// descriptors.
func (u *UThread) Exec(task Task, args []byte) defs.Pid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("exec")
	return u.k.exec(u.pcb, task, args)
}

// WaitChild reaps a zombie child, blocking until one is available. See the
// process table for the exact contract.
func (u *UThread) WaitChild(cpid defs.Pid, status *int) defs.Pid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("waitchild")
	pid := u.k.procs.WaitChild(u.pcb, cpid, status)
	if pid == defs.NoProc {
		u.k.metrics.RecordSyscallError("waitchild")
	} else {
		u.k.metrics.SetProcs(u.k.procs.Count())
	}
	return pid
}

// Exit terminates the calling process with the given status. Never returns.
func (u *UThread) Exit(status int) {
	u.k.s.Lock()
	u.k.metrics.RecordSyscall("exit")
	u.pcb.SetExitVal(status)
	u.exitThread(status)
}

// CreateThread starts a new thread in the calling process and returns its
// id, or NoThread if task is nil.
func (u *UThread) CreateThread(task Task, args []byte) defs.Tid {
	if task == nil {
		return defs.NoThread
	}
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("create_thread")

	var argcopy []byte
	if args != nil {
		argcopy = make([]byte, len(args))
		copy(argcopy, args)
	}
	entry := func(p *proc.PCB, t *proc.PTCB) {
		ut := &UThread{k: u.k, pcb: p, ptcb: t}
		ut.ThreadExit(task(ut, t.Args()))
	}
	tid := u.k.procs.CreateThread(u.pcb, argcopy, entry)
	u.k.metrics.AddThread(1)
	return tid
}

// ThreadSelf returns the calling thread's id.
func (u *UThread) ThreadSelf() defs.Tid {
	return u.ptcb.ID()
}

// ThreadJoin waits for the target thread to exit and publishes its exit
// value through exitval when non-nil. Returns -1 if the target is invalid,
// not in the calling process, the caller itself, or detached.
func (u *UThread) ThreadJoin(tid defs.Tid, exitval *int) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("thread_join")
	ret := u.k.procs.JoinThread(u.pcb, u.ptcb, tid, exitval)
	if ret != 0 {
		u.k.metrics.RecordSyscallError("thread_join")
	}
	return ret
}

// ThreadDetach detaches the target thread, waking and failing all current
// joiners.
func (u *UThread) ThreadDetach(tid defs.Tid) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("thread_detach")
	ret := u.k.procs.DetachThread(u.pcb, tid)
	if ret != 0 {
		u.k.metrics.RecordSyscallError("thread_detach")
	}
	return ret
}

// ThreadExit terminates the calling thread with the given exit value.
// Never returns.
func (u *UThread) ThreadExit(exitval int) {
	u.k.s.Lock()
	u.k.metrics.RecordSyscall("thread_exit")
	u.exitThread(exitval)
}

// exitThread runs the shared exit path. Caller must hold the kernel lock;
// the lock is released by the scheduler sleep and this never returns.
func (u *UThread) exitThread(exitval int) {
	u.k.metrics.AddThread(-1)
	u.k.procs.ExitThread(u.pcb, u.ptcb, exitval)
}

// Pipe creates a pipe and fills ends with its read and write descriptors.
// Returns -1 when two descriptors cannot be reserved.
func (u *UThread) Pipe(ends *PipeEnds) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("pipe")

	fids, fcbs, ok := u.k.fcbs.Reserve(u.pcb.FIDT(), 2)
	if !ok {
		u.k.metrics.RecordSyscallError("pipe")
		return -1
	}

	p := pipe.New(u.k.s)
	fcbs[0].SetStream(p, &readerOps)
	fcbs[1].SetStream(p, &writerOps)
	ends.Read = fids[0]
	ends.Write = fids[1]
	u.k.metrics.IncPipes()
	return 0
}

// Read reads from the stream behind fid into b, blocking per the stream's
// contract. Returns the byte count, 0 for end of data, or -1 when the
// descriptor is invalid or its stream does not support reading.
func (u *UThread) Read(fid defs.Fid, b []byte) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("read")

	fcb := stream.Get(u.pcb.FIDT(), fid)
	if fcb == nil || fcb.Ops() == nil || fcb.Ops().Read == nil {
		u.k.metrics.RecordSyscallError("read")
		return -1
	}
	n := fcb.Ops().Read(fcb.Obj(), b)
	if n > 0 {
		u.k.metrics.AddStreamBytesRead(n)
	}
	return n
}

// Write writes b to the stream behind fid, blocking per the stream's
// contract. Returns the bytes consumed or -1.
func (u *UThread) Write(fid defs.Fid, b []byte) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("write")

	fcb := stream.Get(u.pcb.FIDT(), fid)
	if fcb == nil || fcb.Ops() == nil || fcb.Ops().Write == nil {
		u.k.metrics.RecordSyscallError("write")
		return -1
	}
	n := fcb.Ops().Write(fcb.Obj(), b)
	if n > 0 {
		u.k.metrics.AddStreamBytesWritten(n)
	}
	return n
}

// Close releases the descriptor. The underlying stream closes when its
// last reference drops.
func (u *UThread) Close(fid defs.Fid) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("close")

	fidt := u.pcb.FIDT()
	fcb := stream.Get(fidt, fid)
	if fcb == nil {
		u.k.metrics.RecordSyscallError("close")
		return -1
	}
	fidt[fid] = nil
	return u.k.fcbs.Decref(fcb)
}

// Socket allocates an unbound socket on port and returns its descriptor.
func (u *UThread) Socket(port defs.Port) defs.Fid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("socket")
	fid := u.k.sockets.Socket(u.pcb.FIDT(), port)
	if fid == defs.NoFile {
		u.k.metrics.RecordSyscallError("socket")
	} else {
		u.k.metrics.IncSockets()
	}
	return fid
}

// Listen promotes the socket behind fid to a listener on its port.
func (u *UThread) Listen(fid defs.Fid) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("listen")
	ret := u.k.sockets.Listen(u.pcb.FIDT(), fid)
	if ret != 0 {
		u.k.metrics.RecordSyscallError("listen")
	} else {
		u.k.log.Debug("listen", zap.Int("fid", int(fid)))
	}
	return ret
}

// Accept waits for a connection on the listener and returns the descriptor
// of the new peer socket.
func (u *UThread) Accept(fid defs.Fid) defs.Fid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("accept")
	sfid := u.k.sockets.Accept(u.pcb.FIDT(), fid)
	if sfid == defs.NoFile {
		u.k.metrics.RecordSyscallError("accept")
	} else {
		u.k.metrics.IncConnections()
	}
	return sfid
}

// Connect asks the listener at port to admit the socket behind fid,
// waiting at most timeout. Returns 0 iff admitted.
func (u *UThread) Connect(fid defs.Fid, port defs.Port, timeout defs.Timeout) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("connect")
	ret := u.k.sockets.Connect(u.pcb.FIDT(), fid, port, timeout)
	if ret != 0 {
		u.k.metrics.RecordSyscallError("connect")
	}
	return ret
}

// ShutDown closes one or both directions of the peer socket behind fid.
func (u *UThread) ShutDown(fid defs.Fid, mode defs.ShutdownMode) int {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("shutdown")
	ret := u.k.sockets.Shutdown(u.pcb.FIDT(), fid, mode)
	if ret != 0 {
		u.k.metrics.RecordSyscallError("shutdown")
	}
	return ret
}

// OpenInfo opens a read-only process information stream and returns its
// descriptor. Each read yields one encoded record; see proc.DecodeInfo.
func (u *UThread) OpenInfo() defs.Fid {
	u.k.s.Lock()
	defer u.k.s.Unlock()
	u.k.metrics.RecordSyscall("openinfo")

	fids, fcbs, ok := u.k.fcbs.Reserve(u.pcb.FIDT(), 1)
	if !ok {
		u.k.metrics.RecordSyscallError("openinfo")
		return defs.NoFile
	}
	fcbs[0].SetStream(u.k.procs.NewInfoStream(), &infoOps)
	return fids[0]
}

// Stream op vectors. Each half of a pipe supports only its own direction.
var (
	readerOps = stream.Ops{
		Read:  func(obj any, p []byte) int { return obj.(*pipe.Pipe).Read(p) },
		Close: func(obj any) int { return obj.(*pipe.Pipe).CloseReader() },
	}
	writerOps = stream.Ops{
		Write: func(obj any, p []byte) int { return obj.(*pipe.Pipe).Write(p) },
		Close: func(obj any) int { return obj.(*pipe.Pipe).CloseWriter() },
	}
	infoOps = stream.Ops{
		Read:  func(obj any, p []byte) int { return obj.(*proc.InfoStream).Read(p) },
		Close: func(obj any) int { return obj.(*proc.InfoStream).Close() },
	}
)
