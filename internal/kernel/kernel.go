package kernel

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/proc"
	"github.com/akislouk/operating-systems-project/internal/kernel/sched"
	"github.com/akislouk/operating-systems-project/internal/kernel/socket"
	"github.com/akislouk/operating-systems-project/internal/kernel/stream"
	"github.com/akislouk/operating-systems-project/internal/logging"
	"github.com/akislouk/operating-systems-project/internal/monitoring"
)

// Task is the code a user thread runs. It executes outside the kernel lock
// and makes system calls through the handle it is given. Its return value
// becomes the thread's exit value.
type Task func(sys *UThread, args []byte) int

// Options configures a kernel instance.
type Options struct {
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Kernel ties the subsystems together behind the system call surface. One
// mutex, owned by the scheduler, serializes every operation.
type Kernel struct {
	s       *sched.Sched
	fcbs    *stream.Table
	procs   *proc.Table
	sockets *socket.Layer
	log     *logging.Logger
	metrics *monitoring.Metrics
	booted  bool
}

// New builds a kernel with empty tables.
func New(opts Options) *Kernel {
	log := opts.Logger
	if log == nil {
		log = logging.NewDefault()
	}
	s := sched.New()
	fcbs := stream.NewTable()
	return &Kernel{
		s:       s,
		fcbs:    fcbs,
		procs:   proc.NewTable(s, fcbs),
		sockets: socket.NewLayer(s, fcbs),
		log:     log,
		metrics: opts.Metrics,
	}
}

// Boot executes the idle process (pid 0) and the init process (pid 1)
// running the given task. The kernel halts fatally if pid 0 is not the
// idle process. Boot may be called once.
func (k *Kernel) Boot(init Task, args []byte) error {
	k.s.Lock()
	defer k.s.Unlock()

	if k.booted {
		return fmt.Errorf("kernel already booted")
	}
	k.booted = true

	if pid := k.exec(nil, nil, nil); pid != 0 {
		k.log.Fatal("boot: idle process did not get pid 0", zap.Int("pid", int(pid)))
	}
	if pid := k.exec(nil, init, args); pid != 1 {
		k.log.Fatal("boot: init process did not get pid 1", zap.Int("pid", int(pid)))
	}

	k.log.Info("kernel booted",
		zap.Int("max_proc", defs.MaxProc),
		zap.Int("max_fileid", defs.MaxFileid),
		zap.Int("max_port", defs.MaxPort),
	)
	return nil
}

// InitDone returns a channel closed when init's last thread exits.
func (k *Kernel) InitDone() <-chan struct{} {
	return k.procs.InitDone()
}

// Snapshot returns the current process table contents, one record per
// non-free slot.
func (k *Kernel) Snapshot() []proc.Info {
	k.s.Lock()
	defer k.s.Unlock()
	return k.procs.Snapshot()
}

// exec creates a process running task. Caller must hold the kernel lock.
func (k *Kernel) exec(parent *proc.PCB, task Task, args []byte) defs.Pid {
	var entry proc.ThreadEntry
	if task != nil {
		entry = func(p *proc.PCB, t *proc.PTCB) {
			u := &UThread{k: k, pcb: p, ptcb: t}
			u.Exit(task(u, t.Args()))
		}
	}
	pid := k.procs.Exec(parent, task != nil, args, entry)
	if pid == defs.NoProc {
		k.metrics.RecordSyscallError("exec")
		return pid
	}
	k.metrics.SetProcs(k.procs.Count())
	if task != nil {
		k.metrics.AddThread(1)
	}
	k.log.Debug("exec", zap.Int("pid", int(pid)), zap.Int("argl", len(args)))
	return pid
}
