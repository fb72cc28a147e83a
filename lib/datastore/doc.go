// Package datastore defines the asynchronous key-value datastore that sKV sequences access to.
// The model follows browser style databases: named databases with a schema version,
// object stores created during upgrades, connections that hand out transactions, and
// requests whose outcome is only known once the owning transaction has finished.
//
// Key Components:
//
//   - Factory: opens connections (running an upgrade step when the schema version grows)
//     and deletes databases. Supported() is the capability probe.
//
//   - Connection: creates transactions synchronously. A broken connection reports
//     ErrInvalidState instead of a transaction, which is the signal for callers to
//     discard and reopen it. Connections are notified through OnVersionChange when
//     another party wants to upgrade or delete the database.
//
//   - Transaction / ObjectStore / Request: requests are recorded on the transaction and
//     executed after Commit, strictly in transaction creation order per database.
//     Done() and Err() replace completion, error and abort callbacks.
//
// Implementations:
//
//   - memory: process-local engine on top of xsync maps
//   - bolt: persistent engine storing one bbolt file per database
//   - mock: scriptable wrapper around the memory engine for fault injection in tests
//
// A shared conformance suite lives in the testing sub package.
package datastore
