// Package util provides the building blocks shared by the datastore engines.
//
// The package contains:
//   - fifo: an unbounded multi-producer single-consumer queue. The engines push every
//     transaction onto the queue of its database when it is created; a single scheduler
//     goroutine executes them in that order.
package util
