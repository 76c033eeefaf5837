package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the worker count.
const OverrideEnv = "CACHE_WORKERS"

// Workload describes how a fan-out spends its time. The value is the number
// of workers per available CPU.
type Workload float64

const (
	// Decode is pixel work: decoding, resizing, palette extraction.
	Decode Workload = 1.0
	// Thumbnail mixes a blob read, a decode and a JPEG encode.
	Thumbnail Workload = 1.5
	// DiskIO is stat, read and write work against the library or a cache dir.
	DiskIO Workload = 2.0
)

// Count returns the worker count for a workload, capped by limit when limit
// is positive. CACHE_WORKERS replaces the computed count.
func Count(w Workload, limit int) int {
	n := override()
	if n == 0 {
		n = int(float64(runtime.GOMAXPROCS(0)) * float64(w))
	}
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

func override() int {
	v := os.Getenv(OverrideEnv)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// ForDecode sizes decode and resize fan-outs.
func ForDecode(limit int) int {
	return Count(Decode, limit)
}

// ForThumbnails sizes thumbnail warming.
func ForThumbnails(limit int) int {
	return Count(Thumbnail, limit)
}

// ForDiskIO sizes library walks and cache directory work.
func ForDiskIO(limit int) int {
	return Count(DiskIO, limit)
}
