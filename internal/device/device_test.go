package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, nil, mode); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSortsMatches(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ttyACM1"), 0644)
	touch(t, filepath.Join(dir, "ttyACM0"), 0644)
	touch(t, filepath.Join(dir, "ttyUSB0"), 0644)

	got, err := Discover(filepath.Join(dir, "ttyACM*"))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if want := filepath.Join(dir, "ttyACM0"); got != want {
		t.Errorf("Discover() = %q, want %q", got, want)
	}
}

func TestDiscoverExactPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cu.usbmodem101")
	touch(t, path, 0644)

	got, err := Discover(path)
	if err != nil || got != path {
		t.Errorf("Discover(%q) = %q, %v", path, got, err)
	}

	_, err = Discover(filepath.Join(dir, "missing"))
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("missing device error = %v, want ErrNoDevice", err)
	}
}

func TestDiscoverNoMatches(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "ttyACM*"))
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("error = %v, want ErrNoDevice", err)
	}
}

func TestDiscoverSkipsReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write read-only files")
	}
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ttyACM0"), 0444)
	touch(t, filepath.Join(dir, "ttyACM1"), 0644)

	got, err := Discover(filepath.Join(dir, "ttyACM*"))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if want := filepath.Join(dir, "ttyACM1"); got != want {
		t.Errorf("Discover() = %q, want %q", got, want)
	}
}

func TestDiscoverInvalidPattern(t *testing.T) {
	if _, err := Discover("/dev/tty[ACM"); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestOpenRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyACM0")
	touch(t, path, 0644)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := f.WriteString("{\"state\":\"idle\"}\n"); err != nil {
		t.Errorf("write: %v", err)
	}
	f.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "{\"state\":\"idle\"}\n" {
		t.Errorf("device contents = %q", data)
	}
}
