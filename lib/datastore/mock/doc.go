// Package mock provides a scriptable datastore.Factory for tests.
//
// The factory stores its data in the in-memory engine and lets a test inject
// failures: failing, panicking or blocked opens, failing transaction creation
// and external closes of open connections. Call counters expose how often the
// store under test opened connections and created transactions.
package mock
