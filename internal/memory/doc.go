// Package memory keeps the cache process inside its container memory budget.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT (Kubernetes Downward
// API) so the Go collector works harder before the kernel OOM killer steps in.
//
// Monitor samples the heap against that limit. Above the high water mark
// ShouldThrottle reports true and the prefetch manager skips low-priority
// warming. Above the critical water mark the monitor pauses background work
// (WaitIfPaused blocks the analysis worker) until usage falls back below the
// high water mark.
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
package memory
