// Package launcher turns a launch configuration into a running coordinator
// session.
//
// Launch runs a fixed sequence:
//
//  1. reject a nil configuration
//  2. resolve the optional config module (explicit path or conventional file)
//  3. fill unset options from the built-in defaults
//  4. derive the log and debug sinks
//  5. build the coordinator through the remote-connect factory when a remote
//     host is set, otherwise through the caller's factory
//  6. report a factory error and stop
//  7. register the coordinator's Kill as a shutdown hook
//  8. run plugins in order
//  9. dispatch the script: remote URL, local module, Go function, or, when
//     there is no script, start the fallback control server
//
// Failures up to step 5 are returned from Launch. From the factory onwards
// the completion callback is the only failure channel, and it fires exactly
// once. The control server branch is the exception: its own result is
// forwarded, and the server keeps running afterwards.
//
// Nothing in the sequence enforces a timeout. A factory, fetch or script that
// never completes leaves the launch pending.
package launcher
