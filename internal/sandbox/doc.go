// Package sandbox runs coordinator scripts in a capability-limited Lua state.
//
// No Lua standard library is opened: scripts cannot touch the filesystem,
// the OS, or load further code. The only global a script sees is
// `coordinator`, a table of functions bound to the running coordinator:
//
//	coordinator.kill()          stop the coordinator
//	coordinator.<method>(...)   any method the coordinator exposes through
//	                            Scriptable
//
// A script either drives the coordinator directly from its top level or
// returns a function, which is then called with the coordinator table:
//
//	return function(c)
//	  c.mark(true)
//	end
package sandbox
