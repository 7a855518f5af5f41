// Package history keeps a local audit log of light property changes and a
// registry of every light the service has seen.
//
// Records are written to SQLite by a Recorder that listens to the service
// asynchronously, so a slow disk never stalls state reconciliation. The log
// is read-only history: nothing in it is replayed into light records at
// start-up.
package history
