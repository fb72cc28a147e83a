// Package testing provides a conformance suite for datastore.Factory implementations.
//
// Every engine runs the suite from its own tests:
//
//	func Test(t *testing.T) {
//		dstesting.RunDatastoreTests(t, "Memory", func(testing.TB) datastore.Factory {
//			return memory.NewFactory()
//		})
//	}
//
// The suite covers versioning and upgrades, request semantics (copies, absent keys,
// read-only transactions, invalid input), abort handling, transaction ordering,
// closed connections, version change notifications and database deletion.
package testing
