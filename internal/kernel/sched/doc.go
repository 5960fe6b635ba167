// Package sched provides the scheduling primitives the kernel core is built
// on: a single kernel-wide mutex, condition variables with blocking and
// timed waits, and goroutine-backed kernel threads with explicit spawn and
// wakeup.
//
// The kernel core is effectively single-threaded: every operation runs under
// the one mutex, and the only concurrency comes from the defined suspension
// points, where a condition wait releases the mutex and re-acquires it on
// wakeup. User code runs outside the lock; system calls acquire it on entry.
package sched
