// Package journal records provider events to SQLite.
//
// Every provider the coordinator attaches is written to the providers table,
// and every event it emits becomes one row in provider_events stamped with a
// monotonic sequence number. The journal is append-only; `hive events` reads
// it back.
//
// The journal is wired into a launch as the "journal" plugin.
package journal
