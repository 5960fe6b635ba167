package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/proc"
	"github.com/akislouk/operating-systems-project/internal/logging"
)

// runKernel boots a kernel whose init process runs the given task and waits
// for init to exit.
func runKernel(t *testing.T, init Task) *Kernel {
	t.Helper()
	k := New(Options{Logger: logging.Nop()})
	require.NoError(t, k.Boot(init, nil))
	select {
	case <-k.InitDone():
	case <-time.After(10 * time.Second):
		t.Fatal("init did not exit")
	}
	return k
}

// checkShutdownState asserts the post-shutdown invariants: only the idle
// process and the init zombie occupy the table, and every file control
// block has been released.
func checkShutdownState(t *testing.T, k *Kernel) {
	t.Helper()
	k.s.Lock()
	defer k.s.Unlock()

	assert.Equal(t, 2, k.procs.Count())
	idle := k.procs.Get(0)
	require.NotNil(t, idle)
	assert.Equal(t, proc.Alive, idle.State())
	initp := k.procs.Get(1)
	require.NotNil(t, initp)
	assert.Equal(t, proc.Zombie, initp.State())
	assert.Equal(t, 0, initp.ThreadCount())

	assert.Equal(t, defs.MaxFCB, k.fcbs.Free(), "leaked file control blocks")
}

func TestBootPidsAndIdentity(t *testing.T) {
	k := runKernel(t, func(sys *UThread, args []byte) int {
		assert.Equal(t, defs.Pid(1), sys.GetPid())
		assert.Equal(t, defs.NoProc, sys.GetPPid())

		child := sys.Exec(func(c *UThread, _ []byte) int {
			assert.Greater(t, int(c.GetPid()), 1)
			assert.Equal(t, defs.Pid(1), c.GetPPid())
			return 0
		}, nil)
		assert.NotEqual(t, defs.NoProc, child)
		sys.WaitChild(child, nil)
		return 0
	})
	checkShutdownState(t, k)
}

func TestBootTwiceFails(t *testing.T) {
	k := New(Options{Logger: logging.Nop()})
	require.NoError(t, k.Boot(func(sys *UThread, _ []byte) int { return 0 }, nil))
	assert.Error(t, k.Boot(func(sys *UThread, _ []byte) int { return 0 }, nil))
	<-k.InitDone()
}

func TestPipeLoopbackAndEOF(t *testing.T) {
	k := runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))

		reader := sys.CreateThread(func(th *UThread, _ []byte) int {
			buf := make([]byte, 10)
			n := th.Read(ends.Read, buf)
			assert.Equal(t, 4, n)
			assert.Equal(t, []byte{0x41, 0x42, 0x43, 0x44}, buf[:4])
			assert.Equal(t, 0, th.Read(ends.Read, buf))
			return 0
		}, nil)

		assert.Equal(t, 4, sys.Write(ends.Write, []byte{0x41, 0x42, 0x43, 0x44}))
		assert.Equal(t, 0, sys.Close(ends.Write))
		sys.ThreadJoin(reader, nil)
		assert.Equal(t, 0, sys.Close(ends.Read))
		return 0
	})
	checkShutdownState(t, k)
}

func TestPipeWriteAfterReaderClose(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))
		assert.Equal(t, 0, sys.Close(ends.Read))
		assert.Equal(t, -1, sys.Write(ends.Write, []byte("x")))
		assert.Equal(t, 0, sys.Close(ends.Write))
		return 0
	})
}

func TestPipeUnsupportedDirections(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))
		// Reading the write end or writing the read end is not dispatched.
		assert.Equal(t, -1, sys.Read(ends.Write, make([]byte, 1)))
		assert.Equal(t, -1, sys.Write(ends.Read, []byte("x")))
		sys.Close(ends.Read)
		sys.Close(ends.Write)
		return 0
	})
}

func TestThreadJoinReturnsExitval(t *testing.T) {
	k := runKernel(t, func(sys *UThread, _ []byte) int {
		tid := sys.CreateThread(func(*UThread, []byte) int { return 42 }, nil)
		require.NotEqual(t, defs.NoThread, tid)

		var v int
		assert.Equal(t, 0, sys.ThreadJoin(tid, &v))
		assert.Equal(t, 42, v)
		// The record is freed by the last joiner; a second join fails.
		assert.Equal(t, -1, sys.ThreadJoin(tid, nil))
		return 0
	})
	checkShutdownState(t, k)
}

func TestCreateThreadNilTask(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		assert.Equal(t, defs.NoThread, sys.CreateThread(nil, nil))
		return 0
	})
}

func TestJoinPreconditions(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		assert.Equal(t, -1, sys.ThreadJoin(defs.NoThread, nil))
		assert.Equal(t, -1, sys.ThreadJoin(sys.ThreadSelf(), nil))

		// A thread of another process is not joinable.
		var foreign int
		child := sys.Exec(func(c *UThread, _ []byte) int {
			return int(c.ThreadSelf())
		}, nil)
		sys.WaitChild(child, &foreign)
		assert.Equal(t, -1, sys.ThreadJoin(defs.Tid(foreign), nil))
		return 0
	})
}

func TestDetachMakesJoinFail(t *testing.T) {
	tids := make(chan defs.Tid, 1)
	k := runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))

		tid := sys.CreateThread(func(th *UThread, _ []byte) int {
			th.Read(ends.Read, make([]byte, 1))
			return 9
		}, nil)
		tids <- tid

		assert.Equal(t, 0, sys.ThreadDetach(tid))
		assert.Equal(t, -1, sys.ThreadJoin(tid, nil))
		// Redundant detach of a live thread is accepted.
		assert.Equal(t, 0, sys.ThreadDetach(tid))

		// Release the detached thread; it exits on its own.
		sys.Write(ends.Write, []byte{1})
		sys.Close(ends.Read)
		sys.Close(ends.Write)
		return 0
	})

	// After init exits, the detached thread's record must be gone.
	tid := <-tids
	k.s.Lock()
	assert.Nil(t, k.procs.LookupThread(tid))
	k.s.Unlock()
	checkShutdownState(t, k)
}

func TestDetachWakesBlockedJoiners(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))

		target := sys.CreateThread(func(th *UThread, _ []byte) int {
			th.Read(ends.Read, make([]byte, 1))
			return 0
		}, nil)

		joiner := sys.CreateThread(func(th *UThread, _ []byte) int {
			return th.ThreadJoin(target, nil)
		}, nil)

		// Let the joiner block, then detach the target.
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, 0, sys.ThreadDetach(target))

		var joinRet int
		require.Equal(t, 0, sys.ThreadJoin(joiner, &joinRet))
		assert.Equal(t, -1, joinRet)

		sys.Write(ends.Write, []byte{1})
		sys.Close(ends.Read)
		sys.Close(ends.Write)
		return 0
	})
}

func TestManyJoinersObserveSameExit(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))

		target := sys.CreateThread(func(th *UThread, _ []byte) int {
			th.Read(ends.Read, make([]byte, 1))
			return 5
		}, nil)

		var ready PipeEnds
		require.Equal(t, 0, sys.Pipe(&ready))

		const joiners = 4
		jids := make([]defs.Tid, joiners)
		for i := range jids {
			jids[i] = sys.CreateThread(func(th *UThread, _ []byte) int {
				th.Write(ready.Write, []byte{1})
				var v int
				if th.ThreadJoin(target, &v) != 0 {
					return -1
				}
				return v
			}, nil)
		}

		// Release the target only once every joiner has checked in and had
		// time to block on the join.
		sys.Read(ready.Read, make([]byte, joiners))
		time.Sleep(20 * time.Millisecond)
		sys.Write(ends.Write, []byte{1})
		for _, jid := range jids {
			var got int
			require.Equal(t, 0, sys.ThreadJoin(jid, &got))
			assert.Equal(t, 5, got)
		}

		sys.Close(ends.Read)
		sys.Close(ends.Write)
		sys.Close(ready.Read)
		sys.Close(ready.Write)
		return 0
	})
}

func TestWaitChildSpecificAndPidReuse(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		child := sys.Exec(func(*UThread, []byte) int { return 7 }, nil)
		require.NotEqual(t, defs.NoProc, child)

		var status int
		assert.Equal(t, child, sys.WaitChild(child, &status))
		assert.Equal(t, 7, status)

		// The reaped pid goes back on top of the free list.
		again := sys.Exec(func(*UThread, []byte) int { return 0 }, nil)
		assert.Equal(t, child, again)
		sys.WaitChild(again, nil)
		return 0
	})
}

func TestWaitChildAny(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		a := sys.Exec(func(*UThread, []byte) int { return 1 }, nil)
		b := sys.Exec(func(*UThread, []byte) int { return 2 }, nil)

		statuses := map[defs.Pid]int{}
		for i := 0; i < 2; i++ {
			var st int
			pid := sys.WaitChild(defs.NoProc, &st)
			require.NotEqual(t, defs.NoProc, pid)
			statuses[pid] = st
		}
		assert.Equal(t, map[defs.Pid]int{a: 1, b: 2}, statuses)

		// No children left.
		assert.Equal(t, defs.NoProc, sys.WaitChild(defs.NoProc, nil))
		return 0
	})
}

func TestWaitChildRejectsNonChildren(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		assert.Equal(t, defs.NoProc, sys.WaitChild(0, nil))                     // idle is nobody's child
		assert.Equal(t, defs.NoProc, sys.WaitChild(defs.Pid(defs.MaxProc), nil)) // out of range
		assert.Equal(t, defs.NoProc, sys.WaitChild(defs.Pid(-5), nil))
		return 0
	})
}

func TestOrphanReparentedToInit(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		var gate PipeEnds
		require.Equal(t, 0, sys.Pipe(&gate))

		parent := sys.Exec(func(p *UThread, _ []byte) int {
			p.Exec(func(orphan *UThread, _ []byte) int {
				// Block until init releases us, after the parent is gone.
				orphan.Read(gate.Read, make([]byte, 1))
				if orphan.GetPPid() != 1 {
					return 1
				}
				return 0
			}, nil)
			return 0
		}, nil)

		// Reap the parent; the grandchild is now init's child.
		sys.WaitChild(parent, nil)
		sys.Write(gate.Write, []byte{1})

		var status int
		pid := sys.WaitChild(defs.NoProc, &status)
		require.NotEqual(t, defs.NoProc, pid)
		assert.Equal(t, 0, status, "orphan saw wrong parent")

		sys.Close(gate.Read)
		sys.Close(gate.Write)
		return 0
	})
}

func TestDescriptorInheritance(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		var ends PipeEnds
		require.Equal(t, 0, sys.Pipe(&ends))

		child := sys.Exec(func(c *UThread, _ []byte) int {
			// The child writes on the inherited descriptor.
			if c.Write(ends.Write, []byte("hi")) != 2 {
				return 1
			}
			return 0
		}, nil)

		buf := make([]byte, 2)
		assert.Equal(t, 2, sys.Read(ends.Read, buf))
		assert.Equal(t, "hi", string(buf))

		var status int
		sys.WaitChild(child, &status)
		assert.Equal(t, 0, status)

		sys.Close(ends.Read)
		sys.Close(ends.Write)
		return 0
	})
}

func TestExitStatusPropagatesThroughExit(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		child := sys.Exec(func(c *UThread, _ []byte) int {
			c.Exit(13)
			return 0 // unreachable
		}, nil)
		var status int
		sys.WaitChild(child, &status)
		assert.Equal(t, 13, status)
		return 0
	})
}

func TestArgsAreCopiedIn(t *testing.T) {
	runKernel(t, func(sys *UThread, _ []byte) int {
		args := []byte("payload")
		child := sys.Exec(func(c *UThread, got []byte) int {
			if string(got) != "payload" {
				return 1
			}
			return 0
		}, args)
		// Arguments are copied in at Exec time; mutating the caller's
		// slice afterwards must not reach the child.
		args[0] = 'X'

		var status int
		sys.WaitChild(child, &status)
		assert.Equal(t, 0, status)
		return 0
	})
}
