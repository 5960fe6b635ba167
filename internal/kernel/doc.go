// Package kernel assembles the concurrency core and IPC fabric behind a
// Unix-like system call surface: processes with threads, ref-counted file
// handles, anonymous byte pipes, and stream sockets that reuse pipes as
// their transport.
//
// Every task runs on its own kernel thread and makes system calls through
// the UThread handle it receives. A single kernel mutex serializes all
// operations; blocking calls suspend on scheduler condition variables,
// releasing the mutex until woken.
package kernel
