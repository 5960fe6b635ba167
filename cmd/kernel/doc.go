// Command kernel boots the kernel with a demo init task and serves the
// monitor HTTP surface until init exits or a termination signal arrives.
package main
