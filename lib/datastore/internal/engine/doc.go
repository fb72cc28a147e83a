// Package engine implements the parts of datastore.Factory that every engine shares:
// the registry of named databases, schema versions and upgrades, version change
// notifications, connections, transactions and their scheduling.
//
// An engine only provides a Driver that loads the storage (Backend) of a database.
//
// Scheduling:
//
//	Every database owns a FIFO queue and one scheduler goroutine. Connection.Transaction
//	pushes the new transaction onto the queue immediately, so transactions run strictly
//	in creation order. The scheduler waits for each transaction to be committed (or
//	aborted) before it runs it, executes all recorded requests inside one Backend.Run
//	call and then closes the Done channel of the transaction.
//
// Versioning:
//
//	Opening a database with a higher version first notifies every open connection
//	(OnVersionChange), waits until they are all closed and then runs the upgrade.
//	DeleteDatabase works the same way before it destroys the data.
package engine
