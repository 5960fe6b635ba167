package main

import (
	"go.uber.org/zap"

	"github.com/akislouk/operating-systems-project/internal/kernel"
	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/logging"
)

const demoPort defs.Port = 100

// initTask builds the init process body: a short tour of the syscall
// surface. It pushes a message through a pipe between two threads, then
// runs a ping/pong exchange between two child processes over a socket
// connection, and reaps everything before exiting.
func initTask(logger *logging.Logger) kernel.Task {
	return func(sys *kernel.UThread, args []byte) int {
		pipeDemo(sys, logger)
		socketDemo(sys, logger)

		for sys.WaitChild(defs.NoProc, nil) != defs.NoProc {
		}
		logger.Info("demo complete")
		return 0
	}
}

func pipeDemo(sys *kernel.UThread, logger *logging.Logger) {
	var ends kernel.PipeEnds
	if sys.Pipe(&ends) != 0 {
		logger.Error("pipe creation failed")
		return
	}

	msg := []byte("hello through the pipe")
	writer := sys.CreateThread(func(t *kernel.UThread, args []byte) int {
		return t.Write(ends.Write, args)
	}, msg)

	buf := make([]byte, len(msg))
	n := sys.Read(ends.Read, buf)

	var written int
	sys.ThreadJoin(writer, &written)
	logger.Info("pipe demo",
		zap.Int("written", written),
		zap.Int("read", n),
		zap.ByteString("data", buf[:max(n, 0)]),
	)

	sys.Close(ends.Read)
	sys.Close(ends.Write)
}

func socketDemo(sys *kernel.UThread, logger *logging.Logger) {
	// Listen before spawning the children so the client never races the
	// listener. Both children inherit the listening descriptor.
	lsock := sys.Socket(demoPort)
	if lsock == defs.NoFile || sys.Listen(lsock) != 0 {
		logger.Error("listen failed")
		return
	}

	server := sys.Exec(func(t *kernel.UThread, args []byte) int {
		peer := t.Accept(lsock)
		if peer == defs.NoFile {
			return 1
		}

		buf := make([]byte, 4)
		if t.Read(peer, buf) != 4 || string(buf) != "ping" {
			return 1
		}
		t.Write(peer, []byte("pong"))
		t.Close(peer)
		return 0
	}, nil)

	client := sys.Exec(func(t *kernel.UThread, args []byte) int {
		sock := t.Socket(defs.NoPort)
		if t.Connect(sock, demoPort, defs.NoTimeout) != 0 {
			return 1
		}
		t.Write(sock, []byte("ping"))

		buf := make([]byte, 4)
		if t.Read(sock, buf) != 4 || string(buf) != "pong" {
			return 1
		}
		t.Close(sock)
		return 0
	}, nil)

	var serverStatus, clientStatus int
	sys.WaitChild(server, &serverStatus)
	sys.WaitChild(client, &clientStatus)
	sys.Close(lsock)
	logger.Info("socket demo",
		zap.Int("server_status", serverStatus),
		zap.Int("client_status", clientStatus),
	)
}
