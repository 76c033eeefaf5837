package filesystem

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "open", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"library": "/library",
		"cache":   "/cache",
		"vault":   "/cache/vault",
	})

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "library file", path: "/library/2024/beach.jpg", want: "library"},
		{name: "longest prefix wins", path: "/cache/vault/thumbnails.json", want: "vault"},
		{name: "parent volume", path: "/cache/images/abc", want: "cache"},
		{name: "exact directory", path: "/cache/vault", want: "vault"},
		{name: "sibling with shared prefix", path: "/libraryx/file.jpg", want: "unknown"},
		{name: "unmatched", path: "/etc/hosts", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve_NilResolver(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/library/test.jpg"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want %q", got, "unknown")
	}
}

func TestRetryConfig_ResolveVolume(t *testing.T) {
	original := defaultResolver
	defer func() { defaultResolver = original }()

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"default-vault": "/vault"}))

	config := RetryConfig{}
	if got := config.resolveVolume("/vault/blob"); got != "default-vault" {
		t.Errorf("resolveVolume() = %q, want default resolver label", got)
	}

	config.VolumeResolver = NewVolumeResolver(map[string]string{"override-vault": "/vault"})
	if got := config.resolveVolume("/vault/blob"); got != "override-vault" {
		t.Errorf("resolveVolume() = %q, want config resolver label", got)
	}
}

func TestStatWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size() = %d, want 4", info.Size())
	}

	start := time.Now()
	_, err = StatWithRetry(filepath.Join(dir, "missing"), DefaultRetryConfig())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("StatWithRetry(missing) error = %v, want ErrNotExist", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("missing file should not be retried, took %v", elapsed)
	}
}

func TestReadFileWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	want := []byte("thumbnail bytes")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadFileWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadFileWithRetry() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadFileWithRetry() = %q, want %q", got, want)
	}
}

func TestRetryStaleErrorsExhaustBudget(t *testing.T) {
	config := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	calls := 0
	_, err := retry("read", "/nowhere", config, func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Errorf("retry() error = %v, want ESTALE", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3 (1 + 2 retries)", calls)
	}
}

func TestRetryRecoversAfterStaleError(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	calls := 0
	got, err := retry("stat", "/nowhere", config, func() (string, error) {
		calls++
		if calls < 2 {
			return "", syscall.ESTALE
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("retry() = (%q, %v), want (ok, nil)", got, err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thumbnails.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("first WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"b":2}`), 0o644); err != nil {
		t.Fatalf("second WriteFileAtomic() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != `{"b":2}` {
		t.Errorf("content = %q, want replacement content", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the published file, found %d entries", len(entries))
	}
}

func TestWriteFileAtomic_MissingDirLeavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "thumbnails.json")
	if err := WriteFileAtomic(path, []byte("x"), 0o644); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("no file should exist after failed write, stat err = %v", err)
	}
}

type recordingObserver struct {
	mu         sync.Mutex
	operations []string
	stale      int
}

func (o *recordingObserver) ObserveOperation(volume, operation string, _ float64, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.operations = append(o.operations, volume+":"+operation)
}
func (o *recordingObserver) ObserveRetryAttempt(string, string) {}
func (o *recordingObserver) ObserveRetrySuccess(string, string) {}
func (o *recordingObserver) ObserveRetryFailure(string, string) {}
func (o *recordingObserver) ObserveRetryDuration(string, string, float64) {}
func (o *recordingObserver) ObserveStaleError(string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func TestObserverReceivesOperations(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	dir := t.TempDir()
	config := RetryConfig{VolumeResolver: NewVolumeResolver(map[string]string{"vault": dir})}
	path := filepath.Join(dir, "blob")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadFileWithRetry(path, config); err != nil {
		t.Fatalf("ReadFileWithRetry() error = %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.operations) != 1 || obs.operations[0] != "vault:read" {
		t.Errorf("operations = %v, want [vault:read]", obs.operations)
	}
}
