// Package contrib provides additional functionality and utilities
// around the fieldsync library.
//
// Everything under this directory extends the core library with tooling
// that is not part of the library surface itself, and sits outside its
// backward compatibility guarantees.
//
// The contrib directory currently includes
// [github.com/fieldsync/fieldsync.go/contrib/syncctl], a command line tool
// for inspecting, draining and clearing a queue file out of band.
package contrib
