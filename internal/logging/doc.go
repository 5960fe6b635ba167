// Package logging provides structured logging for the kernel and its
// monitor service, built on zap. Production output is JSON; development
// output is colored console.
package logging
