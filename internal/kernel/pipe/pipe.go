package pipe

import (
	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/sched"
)

// Pipe is a bounded single-producer/single-consumer byte stream over a
// cyclic buffer. Each end has its own liveness bit, flipped by the close
// operation of that end; socket shutdown paths flip the same bits directly.
//
// Invariants, at every quiescent moment:
//
//	0 <= count <= PipeBufferSize
//	wpos == (rpos + count) % PipeBufferSize
//
// All methods assume the kernel lock is held. Blocking calls suspend on the
// scheduler, releasing the lock until woken.
type Pipe struct {
	s *sched.Sched

	hasSpace sched.Cond // writer blocks here while the buffer is full
	hasData  sched.Cond // reader blocks here while the buffer is empty

	buf   [defs.PipeBufferSize]byte
	rpos  int
	wpos  int
	count int

	readerOpen bool
	writerOpen bool
}

// New creates a pipe with both ends open.
func New(s *sched.Sched) *Pipe {
	return &Pipe{s: s, readerOpen: true, writerOpen: true}
}

// Write copies up to len(b) bytes into the pipe, blocking while the buffer
// is full and the reader remains open. If the reader closes mid-write, the
// bytes copied so far are returned, possibly zero. Returns -1 if either end
// was already closed at entry. The write is not atomic across suspensions;
// the reader may observe any prefix.
func (p *Pipe) Write(b []byte) int {
	if !p.readerOpen || !p.writerOpen {
		return -1
	}

	written := 0
	for written < len(b) {
		for p.readerOpen && p.count == defs.PipeBufferSize {
			// Let a reader waiting for the first byte run before we block.
			p.s.Broadcast(&p.hasData)
			p.s.Wait(&p.hasSpace, sched.ReasonPipe)
		}
		if !p.readerOpen {
			return written
		}

		n := len(b) - written
		if free := defs.PipeBufferSize - p.count; n > free {
			n = free
		}
		first := copy(p.buf[p.wpos:], b[written:written+n])
		if first < n {
			copy(p.buf[:], b[written+first:written+n])
		}
		p.wpos = (p.wpos + n) % defs.PipeBufferSize
		p.count += n
		written += n
	}

	p.s.Broadcast(&p.hasData)
	return written
}

// Read copies up to len(b) bytes out of the pipe, blocking while the buffer
// is empty and the writer remains open. It returns once len(b) bytes have
// been delivered, or earlier with a short count when the writer closes and
// the buffer drains. Returns 0 for end of data and -1 if the reader side
// was already closed.
func (p *Pipe) Read(b []byte) int {
	if !p.readerOpen {
		return -1
	}
	if !p.writerOpen && p.count == 0 {
		return 0
	}

	got := 0
	for got < len(b) {
		for p.writerOpen && p.count == 0 {
			p.s.Broadcast(&p.hasSpace)
			p.s.Wait(&p.hasData, sched.ReasonPipe)
		}
		if p.count == 0 {
			// Writer closed and the buffer drained.
			return got
		}

		n := len(b) - got
		if n > p.count {
			n = p.count
		}
		first := copy(b[got:got+n], p.buf[p.rpos:])
		if first < n {
			copy(b[got+first:got+n], p.buf[:])
		}
		p.rpos = (p.rpos + n) % defs.PipeBufferSize
		p.count -= n
		got += n
	}

	p.s.Broadcast(&p.hasSpace)
	return got
}

// CloseReader clears the reader side and wakes any blocked writers. Closing
// an already-closed side fails.
func (p *Pipe) CloseReader() int {
	if !p.readerOpen {
		return -1
	}
	p.readerOpen = false
	p.s.Broadcast(&p.hasSpace)
	return 0
}

// CloseWriter clears the writer side and wakes any blocked readers.
func (p *Pipe) CloseWriter() int {
	if !p.writerOpen {
		return -1
	}
	p.writerOpen = false
	p.s.Broadcast(&p.hasData)
	return 0
}

// Count reports the bytes currently buffered. Caller must hold the kernel
// lock.
func (p *Pipe) Count() int { return p.count }

// Closed reports whether both ends have been closed.
func (p *Pipe) Closed() bool { return !p.readerOpen && !p.writerOpen }
