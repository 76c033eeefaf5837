/*
Package workers sizes the goroutine pools used by the cache subsystem.

Thumbnail warming, image pipeline renders and library scans all fan out work.
Spawning one goroutine per asset on a library of 100k photos would exhaust
memory and thrash the decoder, so every fan-out is bounded by a count derived
from GOMAXPROCS, which Go 1.19+ sets from the container CPU limit:

	g.SetLimit(workers.ForThumbnails(8)) // blob read, decode, encode

# Workload Types

  - ForDecode: decoding and resizing (1 per CPU)
  - ForThumbnails: thumbnail warming (1.5 per CPU)
  - ForDiskIO: library walks and cache directory work (2 per CPU)

# Environment Variable Override

CACHE_WORKERS pins the count regardless of CPU availability, still capped by
the caller's limit:

	env:
	- name: CACHE_WORKERS
	  value: "4"

All functions are safe for concurrent use.
*/
package workers
