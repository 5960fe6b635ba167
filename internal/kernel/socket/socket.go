package socket

import (
	"container/list"

	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/kernel/pipe"
	"github.com/akislouk/operating-systems-project/internal/kernel/sched"
	"github.com/akislouk/operating-systems-project/internal/kernel/stream"
)

// Type tags the socket variant. A socket is created unbound and may promote
// to listener or peer exactly once; there is no demotion.
type Type int

const (
	Unbound Type = iota
	Listener
	Peer
)

// String returns the string representation of the type.
func (t Type) String() string {
	switch t {
	case Unbound:
		return "unbound"
	case Listener:
		return "listener"
	case Peer:
		return "peer"
	default:
		return "unknown"
	}
}

// Socket is a socket control block. The tag selects which body fields are
// meaningful; every dispatch path matches on the tag rather than trusting a
// pointer.
type Socket struct {
	refcount int
	fcb      *stream.FCB
	typ      Type
	port     defs.Port

	// Listener body.
	queue        *list.List // pending *request, FIFO
	reqAvailable sched.Cond

	// Peer body. The peer back-reference is weak: once the other side
	// closes it may point at a drained socket, so it is never dereferenced
	// without re-checking the tag and pipes.
	peer      *Socket
	readPipe  *pipe.Pipe
	writePipe *pipe.Pipe
}

// Type reports the socket's tag. Caller must hold the kernel lock.
func (s *Socket) Type() Type { return s.typ }

// Port reports the socket's port, NoPort when unbound to any.
func (s *Socket) Port() defs.Port { return s.port }

// Peer returns the paired peer socket, nil unless the tag is Peer.
func (s *Socket) Peer() *Socket { return s.peer }

// Pipes returns the peer's read and write pipes.
func (s *Socket) Pipes() (r, w *pipe.Pipe) { return s.readPipe, s.writePipe }

// Refcount reports the control block's reference count. Caller must hold
// the kernel lock.
func (s *Socket) Refcount() int { return s.refcount }

// Pending reports the number of queued connection requests, zero unless the
// socket is a listener. Caller must hold the kernel lock.
func (s *Socket) Pending() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// request is a pending connection. It is allocated by the connecting thread
// and dequeued by whichever side reaches it first; the connecting thread
// always observes admitted after waking and is the one to drop the request.
type request struct {
	admitted  bool
	peer      *Socket // the connecting client socket
	connected sched.Cond
	node      *list.Element
}

// Layer owns the port map and implements every socket operation. All
// methods assume the kernel lock is held; descriptor tables are passed in
// by the dispatch layer.
type Layer struct {
	s     *sched.Sched
	fcbs  *stream.Table
	ports [defs.MaxPort + 1]*Socket
	ops   stream.Ops
}

// NewLayer creates a socket layer with an empty port map.
func NewLayer(s *sched.Sched, fcbs *stream.Table) *Layer {
	l := &Layer{s: s, fcbs: fcbs}
	l.ops = stream.Ops{
		Read:  func(obj any, p []byte) int { return l.read(obj.(*Socket), p) },
		Write: func(obj any, p []byte) int { return l.write(obj.(*Socket), p) },
		Close: func(obj any) int { return l.close(obj.(*Socket)) },
	}
	return l
}

// ListenerAt returns the listener published on port, if any. Caller must
// hold the kernel lock.
func (l *Layer) ListenerAt(port defs.Port) *Socket {
	if port < 0 || port > defs.MaxPort {
		return nil
	}
	return l.ports[port]
}

// Socket allocates an unbound socket on port, which may be NoPort, and
// binds it to a fresh descriptor in fidt. Returns NoFile when the port is
// out of range or no handle could be reserved.
func (l *Layer) Socket(fidt []*stream.FCB, port defs.Port) defs.Fid {
	if port < defs.NoPort || port > defs.MaxPort {
		return defs.NoFile
	}

	fids, fcbs, ok := l.fcbs.Reserve(fidt, 1)
	if !ok {
		return defs.NoFile
	}

	sock := &Socket{
		refcount: 1,
		fcb:      fcbs[0],
		typ:      Unbound,
		port:     port,
	}
	fcbs[0].SetStream(sock, &l.ops)
	return fids[0]
}

// Listen promotes an unbound socket with a bound port to a listener and
// publishes it in the port map. Fails on an invalid descriptor, a socket
// that is not unbound, a missing port, or a port that already has a
// listener.
func (l *Layer) Listen(fidt []*stream.FCB, fid defs.Fid) int {
	sock := l.lookup(fidt, fid)
	if sock == nil || sock.typ != Unbound {
		return -1
	}
	if sock.port == defs.NoPort {
		return -1
	}
	if l.ports[sock.port] != nil {
		return -1
	}

	sock.typ = Listener
	sock.queue = list.New()
	l.ports[sock.port] = sock
	return 0
}

// Accept blocks until a connection request arrives on the listener, then
// builds the peer pair: a fresh server socket on the listener's port, both
// sockets promoted to peers, cross-linked, and joined by a pipe in each
// direction. The connecting thread is always signalled, with admitted set
// only on success. Returns the server descriptor, or NoFile if the
// descriptor is invalid, the socket is not a published listener, the
// listener is closed while waiting, or handle reservation fails.
func (l *Layer) Accept(fidt []*stream.FCB, fid defs.Fid) defs.Fid {
	sock := l.lookup(fidt, fid)
	if sock == nil || sock.typ != Listener {
		return defs.NoFile
	}

	// Pin the listener so a close during the wait cannot release it out
	// from under us.
	sock.refcount++
	for sock.queue.Len() == 0 && l.ports[sock.port] == sock {
		l.s.Wait(&sock.reqAvailable, sched.ReasonIO)
	}

	if l.ports[sock.port] != sock {
		l.decref(sock)
		return defs.NoFile
	}

	el := sock.queue.Front()
	sock.queue.Remove(el)
	req := el.Value.(*request)
	req.node = nil

	serverFid := l.Socket(fidt, sock.port)
	if serverFid == defs.NoFile {
		// The client still has to wake; it observes admitted == false.
		l.s.Signal(&req.connected)
		l.decref(sock)
		return defs.NoFile
	}
	server := fidt[serverFid].Obj().(*Socket)
	client := req.peer

	server.typ = Peer
	client.typ = Peer
	server.peer = client
	client.peer = server

	toServer := pipe.New(l.s)
	toClient := pipe.New(l.s)
	server.readPipe = toServer
	server.writePipe = toClient
	client.readPipe = toClient
	client.writePipe = toServer

	req.admitted = true
	l.s.Signal(&req.connected)
	l.decref(sock)
	return serverFid
}

// Connect queues a connection request on the listener at port and waits,
// bounded by timeout, for an acceptor to admit it. Whether admitted, timed
// out, or refused, the request is dequeued and dropped by the caller.
// Returns 0 iff the request was admitted.
func (l *Layer) Connect(fidt []*stream.FCB, fid defs.Fid, port defs.Port, timeout defs.Timeout) int {
	if port < defs.NoPort || port > defs.MaxPort {
		return -1
	}
	sock := l.lookup(fidt, fid)
	if sock == nil || sock.typ != Unbound {
		return -1
	}
	lst := l.ports[port]
	if lst == nil || lst.typ != Listener {
		return -1
	}

	sock.refcount++
	req := &request{peer: sock}
	queue := lst.queue
	req.node = queue.PushBack(req)
	l.s.Signal(&lst.reqAvailable)

	l.s.TimedWait(&req.connected, sched.ReasonIO, timeout)
	l.decref(sock)

	if req.node != nil {
		queue.Remove(req.node)
		req.node = nil
	}
	if req.admitted {
		return 0
	}
	return -1
}

// Shutdown closes one or both directions of a peer socket by flipping the
// pipe liveness bit for that end and clearing the pointer. Further reads or
// writes on a cleared half fail immediately. Shutting down an already
// cleared half is a no-op.
func (l *Layer) Shutdown(fidt []*stream.FCB, fid defs.Fid, mode defs.ShutdownMode) int {
	sock := l.lookup(fidt, fid)
	if sock == nil || sock.typ != Peer {
		return -1
	}

	switch mode {
	case defs.ShutdownRead:
		l.shutRead(sock)
	case defs.ShutdownWrite:
		l.shutWrite(sock)
	case defs.ShutdownBoth:
		l.shutRead(sock)
		l.shutWrite(sock)
	default:
		return -1
	}
	return 0
}

func (l *Layer) shutRead(sock *Socket) {
	if sock.readPipe != nil {
		sock.readPipe.CloseReader()
		sock.readPipe = nil
	}
}

func (l *Layer) shutWrite(sock *Socket) {
	if sock.writePipe != nil {
		sock.writePipe.CloseWriter()
		sock.writePipe = nil
	}
}

// read delegates to the peer's read pipe.
func (l *Layer) read(sock *Socket, p []byte) int {
	if sock.typ != Peer || sock.readPipe == nil {
		return -1
	}
	return sock.readPipe.Read(p)
}

// write delegates to the peer's write pipe.
func (l *Layer) write(sock *Socket, p []byte) int {
	if sock.typ != Peer || sock.writePipe == nil {
		return -1
	}
	return sock.writePipe.Write(p)
}

// close runs when the last descriptor reference to the socket drops. A peer
// half-closes both directions. A listener refuses every pending request,
// waking each connecting thread, unpublishes its port, and wakes any
// blocked acceptor.
func (l *Layer) close(sock *Socket) int {
	switch sock.typ {
	case Peer:
		l.shutRead(sock)
		l.shutWrite(sock)
		sock.peer = nil
	case Listener:
		for el := sock.queue.Front(); el != nil; el = sock.queue.Front() {
			req := el.Value.(*request)
			sock.queue.Remove(el)
			req.node = nil
			l.s.Signal(&req.connected)
		}
		if l.ports[sock.port] == sock {
			l.ports[sock.port] = nil
		}
		l.s.Broadcast(&sock.reqAvailable)
	}

	l.decref(sock)
	return 0
}

func (l *Layer) lookup(fidt []*stream.FCB, fid defs.Fid) *Socket {
	fcb := stream.Get(fidt, fid)
	if fcb == nil {
		return nil
	}
	sock, ok := fcb.Obj().(*Socket)
	if !ok {
		return nil
	}
	return sock
}

func (l *Layer) decref(sock *Socket) {
	sock.refcount--
}
