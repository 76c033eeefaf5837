package startup

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/workers"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

const rule = "------------------------------------------------------------"

// section writes a titled block header.
func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

// LogDatabaseInit reports the metadata store opening.
func LogDatabaseInit(duration time.Duration) {
	section("METADATA STORE")
	logging.Info("  [OK] SQLite store ready in %v", duration.Round(time.Millisecond))
}

// LogMediaToolsInit reports which renderers are usable. Images fall back to
// pure Go decoding without libvips; videos get no thumbnail without ffmpeg.
func LogMediaToolsInit(vipsAvailable bool) {
	section("RENDERERS")

	if vipsAvailable {
		logging.Info("  [OK] libvips: decode-time shrinking enabled")
	} else {
		logging.Info("  libvips: unavailable, images decode with imaging")
	}

	version, err := ffmpegVersion()
	if err != nil {
		logging.Warn("  ffmpeg: %v; video assets will have no thumbnail", err)
		return
	}
	logging.Info("  [OK] ffmpeg: %s", version)
}

// LogCacheInit reports the state of each cache tier after opening.
func LogCacheInit(config *Config, vaultDescriptors int, imageCacheUsage int64) {
	section("CACHE TIERS")
	logging.Info("  Thumbnail bytes: %d entries in memory", config.ThumbnailMemoryEntries)
	logging.Info("  Thumbnail vault: %d descriptors in %s", vaultDescriptors, config.VaultDir)
	logging.Info("  Decoded images:  %s in memory", humanize.IBytes(uint64(config.PipelineMemoryBudget)))
	logging.Info("  Image disk cache: %s used of %s in %s",
		humanize.IBytes(uint64(imageCacheUsage)), humanize.IBytes(uint64(config.ImageCacheBudget)), config.ImageCacheDir)
}

// LogIndexerInit reports the scan schedule before the first scan starts.
func LogIndexerInit(interval time.Duration) {
	section("LIBRARY SCANNING")
	if interval > 0 {
		logging.Info("  Rescan every %v and on file changes", interval)
	} else {
		logging.Info("  Rescan on file changes only")
	}
}

// LogIndexerStarted confirms the initial scan is running.
func LogIndexerStarted() {
	logging.Info("  [OK] Initial scan running in background (/readyz turns ready when done)")
}

// GetRoutes lists every registered route, one entry per method.
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			// Routes without a method matcher accept any method.
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes reports the route count and, at debug level, every route
// grouped by resource.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP ROUTES")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  route walk stopped early: %v", err)
	}
	logging.Info("  %d routes registered", len(routes))

	if logging.IsDebugEnabled() {
		sort.SliceStable(routes, func(i, j int) bool {
			return getRouteGroup(routes[i].Path) < getRouteGroup(routes[j].Path)
		})
		group := "\x00"
		for _, r := range routes {
			if g := getRouteGroup(r.Path); g != group {
				group = g
				logging.Debug("  %s:", group)
			}
			logging.Debug("    %-6s %s", r.Method, r.Path)
		}
	}

	if !logHealthChecks {
		logging.Info("  Health check requests (/healthz, /livez, /readyz) are not logged")
	}
}

// getRouteGroup returns the first path segment, or "api/<resource>" for API
// routes.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		resource, _, _ := strings.Cut(rest, "/")
		return "api/" + resource
	}
	if first == "" {
		return "root"
	}
	return first
}

// ServerConfig describes the listening server for the startup summary.
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted writes the ready summary with the main endpoints.
func LogServerStarted(config ServerConfig) {
	base := "http://localhost:" + config.Port
	section(fmt.Sprintf("SERVING ON :%s (ready in %v)", config.Port, config.StartupDuration.Round(time.Millisecond)))
	logging.Info("  Thumbnails:  %s/api/thumbnail/{id}", base)
	logging.Info("  Images:      %s/api/image/{id}?w=&h=", base)
	logging.Info("  Metadata:    %s/api/metadata?ids=", base)
	logging.Info("  Prefetch:    %s/api/prefetch", base)
	logging.Info("  Health:      %s/healthz", base)
	if config.MetricsEnabled {
		logging.Info("  Metrics:     %s/metrics", base)
	} else {
		logging.Info("  Metrics:     disabled")
	}
	logging.Info(rule)
}

// LogShutdownInitiated opens the shutdown block.
func LogShutdownInitiated(reason string) {
	section("SHUTTING DOWN (" + reason + ")")
}

// LogShutdownStep reports a shutdown step starting.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete reports a shutdown step finishing.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete closes the shutdown block.
func LogShutdownComplete(elapsed time.Duration) {
	logging.Info("  [OK] Stopped in %v", elapsed.Round(time.Millisecond))
}

func printBanner() {
	fmt.Println(rule + `
                        ___                               __
   ____ ___  ___  ____/ (_)___ _      _________ ______/ /_  ___
  / __ '__ \/ _ \/ __  / / __ '/_____/ ___/ __ '/ ___/ __ \/ _ \
 / / / / / /  __/ /_/ / / /_/ /_____/ /__/ /_/ / /__/ / / /  __/
/_/ /_/ /_/\___/\__,_/_/\__,_/      \___/\__,_/\___/_/ /_/\___/
` + rule)
	logging.Info("  media-cache %s (commit %s, built %s)", Version, Commit, BuildTime)
	logging.Info("")
}

// logSystemInfo reports the limits the cache sizes itself against.
func logSystemInfo() {
	section("RUNTIME")
	logging.Info("  Go %s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs: %d available, GOMAXPROCS %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))

	if limit := debug.SetMemoryLimit(-1); limit < math.MaxInt64 {
		logging.Info("  GOMEMLIMIT: %s", humanize.IBytes(uint64(limit)))
	} else {
		logging.Info("  GOMEMLIMIT: unset")
	}

	logging.Info("  Workers: %d decode, %d thumbnail, %d disk I/O",
		workers.ForDecode(0), workers.ForThumbnails(0), workers.ForDiskIO(0))
	if v := os.Getenv(workers.OverrideEnv); v != "" {
		logging.Info("    (pinned by %s=%s)", workers.OverrideEnv, v)
	}

	if hostname, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname: %s", hostname)
	}
}

func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", name, err)
		}
		logging.Info("  Created %s directory %s", name, path)
		return nil
	case err != nil:
		return fmt.Errorf("stat %s directory: %w", name, err)
	case !info.IsDir():
		return fmt.Errorf("%s path %s is not a directory", name, path)
	}

	if name == "library" && logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			logging.Debug("  Library has %d top-level entries", len(entries))
		}
	}
	return nil
}

// testWriteAccess creates and removes a scratch file in dir.
func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
	}
	return nil
}

// ffmpegVersion returns the first line of `ffmpeg -version`.
func ffmpegVersion() (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("not found in PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version failed: %w", path, err)
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}
