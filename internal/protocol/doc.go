// Package protocol defines the worker-provider wire protocol.
//
// A remote worker source talks to hive over a channel carrying ordered pairs:
//
//	[code]            availability changes
//	[code, workerId]  worker lifecycle relays
//
// Codes are stable. A code never changes meaning once released, and new
// message types only ever take new codes.
//
// Decoding never fails on an unknown code. Such a frame yields a Message whose
// Type reports false from Known, and consumers drop it without error.
package protocol
