// Package store provides a key-value store on top of a datastore.Factory.
//
// A Handle owns at most one connection to a named database and runs every
// operation (SetItem, GetItem, RemoveItem, Clear, Length) in its own
// transaction on a single object store.
//
// Key Components:
//
//   - Connection Manager: opens the connection lazily on the first operation.
//     The state of the connection is explicit (closed, opening, open) and only
//     one open is in flight at a time. The connection is closed when another
//     connection upgrades or deletes the database, and reopened on demand.
//
//   - Transaction Sequencer: hands out transactions. While no connection is open
//     requests are queued and granted in call order once the open finished; if
//     the open failed, all of them fail with its error. A connection that can no
//     longer create transactions (e.g. it was closed externally) is discarded and
//     the request is retried once on a new connection without the caller noticing.
//
//   - Operation Executors: issue exactly one request per transaction, commit it
//     and wait for the outcome.
//
//   - Typed: stores Go values with a codec from the codec package.
//
// Errors of the datastore reach the caller unchanged; errors of the store itself
// are *Error values with a RetCode.
//
// Example:
//
//	h := store.New(memory.NewFactory(), nil)
//	defer h.Close()
//	if _, err := h.SetItem("k", []byte("v")); err != nil {
//		...
//	}
//	value, found, err := h.GetItem("k")
//
// Handles on the same database name do not coordinate with each other, every
// handle has its own connection.
package store
