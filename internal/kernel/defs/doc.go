// Package defs holds the compile-time constants, identifier types, and
// sentinel values shared by every kernel subsystem.
package defs
