package proc

import (
	"encoding/binary"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
)

// Info is one snapshot record of a process table slot.
type Info struct {
	Pid         defs.Pid
	PPid        defs.Pid
	Alive       bool
	Main        bool
	ThreadCount int
	ArgLen      int
	Args        []byte // at most ProcinfoMaxArgsSize bytes
}

// InfoRecordSize is the wire size of one encoded Info record.
const InfoRecordSize = 4 + 4 + 1 + 1 + 4 + 4 + defs.ProcinfoMaxArgsSize

// encode writes the fixed-size record layout:
//
//	pid int32 | ppid int32 | alive u8 | main u8 | threads int32 | argl int32 | args [ProcinfoMaxArgsSize]byte
func (in *Info) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], uint32(int32(in.Pid)))
	binary.LittleEndian.PutUint32(b[4:], uint32(int32(in.PPid)))
	b[8] = boolByte(in.Alive)
	b[9] = boolByte(in.Main)
	binary.LittleEndian.PutUint32(b[10:], uint32(int32(in.ThreadCount)))
	binary.LittleEndian.PutUint32(b[14:], uint32(int32(in.ArgLen)))
	args := b[18 : 18+defs.ProcinfoMaxArgsSize]
	for i := range args {
		args[i] = 0
	}
	copy(args, in.Args)
}

// DecodeInfo parses a record previously produced by an info stream read.
func DecodeInfo(b []byte) (Info, bool) {
	if len(b) < InfoRecordSize {
		return Info{}, false
	}
	in := Info{
		Pid:         defs.Pid(int32(binary.LittleEndian.Uint32(b[0:]))),
		PPid:        defs.Pid(int32(binary.LittleEndian.Uint32(b[4:]))),
		Alive:       b[8] != 0,
		Main:        b[9] != 0,
		ThreadCount: int(int32(binary.LittleEndian.Uint32(b[10:]))),
		ArgLen:      int(int32(binary.LittleEndian.Uint32(b[14:]))),
	}
	n := in.ArgLen
	if n > defs.ProcinfoMaxArgsSize {
		n = defs.ProcinfoMaxArgsSize
	}
	if n > 0 {
		in.Args = make([]byte, n)
		copy(in.Args, b[18:18+n])
	}
	return in, true
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func (t *Table) infoOf(p *PCB) Info {
	in := Info{
		Pid:         p.pid,
		Alive:       p.state == Alive,
		Main:        p.hasMain,
		ThreadCount: p.threadCount,
		ArgLen:      len(p.args),
	}
	if p.parent != nil {
		in.PPid = p.parent.pid
	} else {
		in.PPid = defs.NoProc
	}
	n := len(p.args)
	if n > defs.ProcinfoMaxArgsSize {
		n = defs.ProcinfoMaxArgsSize
	}
	if n > 0 {
		in.Args = make([]byte, n)
		copy(in.Args, p.args)
	}
	return in
}

// Snapshot returns one Info per non-free process table slot, in pid order.
// Caller must hold the kernel lock.
func (t *Table) Snapshot() []Info {
	out := make([]Info, 0, t.procCount)
	for pid := range t.pt {
		p := &t.pt[pid]
		if p.state == Free {
			continue
		}
		out = append(out, t.infoOf(p))
	}
	return out
}

// InfoStream is a read-only cursor over the process table. Each read
// returns one encoded record, skipping free slots; a read past the end of
// the table returns 0.
type InfoStream struct {
	t      *Table
	cursor int
}

// NewInfoStream opens a cursor positioned at pid 0.
func (t *Table) NewInfoStream() *InfoStream {
	return &InfoStream{t: t}
}

// Read copies the next record into b, which must hold InfoRecordSize bytes.
// Returns the record size, 0 at end of table, or -1 on a short buffer.
// Caller must hold the kernel lock.
func (s *InfoStream) Read(b []byte) int {
	for s.cursor < defs.MaxProc && s.t.pt[s.cursor].state == Free {
		s.cursor++
	}
	if s.cursor >= defs.MaxProc {
		return 0
	}
	if len(b) < InfoRecordSize {
		return -1
	}

	in := s.t.infoOf(&s.t.pt[s.cursor])
	in.encode(b[:InfoRecordSize])
	s.cursor++
	return InfoRecordSize
}

// Close releases the cursor.
func (s *InfoStream) Close() int {
	if s.t == nil {
		return -1
	}
	s.t = nil
	return 0
}
