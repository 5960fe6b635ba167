// Package stream implements the file control block table and the per-handle
// operation vector that binds stream objects (pipes, sockets, info streams)
// to process descriptor tables.
package stream
