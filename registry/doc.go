// Package registry caches backend agent instances per session key and owns
// their lifecycle: lazy creation through a factory, one-run-per-key mutual
// exclusion, idle eviction via the reaper, and terminal-outcome bookkeeping
// for the status surface.
//
// The registry's key map is the single piece of shared mutable state in the
// service; all session state transitions happen under its lock.
package registry
