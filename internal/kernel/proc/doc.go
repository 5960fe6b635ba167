// Package proc implements the process table and the per-process thread
// records: process creation and reaping, the joinable/detached thread
// lifecycle, and the read-only process information stream.
//
// Pid 0 is the idle process and pid 1 is init. When a process's last thread
// exits, its still-alive children are re-parented to init, its unreaped
// zombies are handed to init's exited list, and the process itself becomes
// a zombie on its parent's exited list until reaped by WaitChild.
package proc
