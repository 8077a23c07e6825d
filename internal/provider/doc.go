// Package provider adapts a remote worker source's channel into typed
// lifecycle events.
//
// A Provider owns exactly one channel. Inbound protocol messages published on
// that channel drive a small state machine:
//
//	unknown --AVAILABLE--> available --UNAVAILABLE--> unavailable
//	   \                      ^  |                       |
//	    \--UNAVAILABLE--------+--+-----AVAILABLE---------/
//
// There is no terminal state and repeated messages are not suppressed: every
// AVAILABLE frame emits "available", even when the provider already is.
//
// Consumers never see the Provider itself. They get a Facade, which only lets
// them observe events and read the id and attributes.
package provider
