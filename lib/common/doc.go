// Package common provides the configuration and logging shared by the sKV command
// line tool and libraries.
//
//   - StoreConfig: configuration of a store handle and the datastore engine behind it,
//     with validation and a printable summary.
//
//   - Logger: custom logging implementation that plugs into dragonboats logger
//     package, so every package logs with the same format (LEVEL | package | message).
package common
