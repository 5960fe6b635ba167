// Package pipe implements the bounded cyclic byte pipe with blocking
// read/write and independent half-close of the reader and writer ends.
package pipe
