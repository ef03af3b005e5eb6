package persist

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/servermon/internal/domain"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	now := time.Now()
	in := []domain.Endpoint{
		domain.NewEndpoint("Server A", "192.0.2.1", []uint16{80, 22}),
		domain.NewEndpoint("", "2001:db8::1", nil),
		domain.NewEndpoint("dup", "bad address", []uint16{443}),
		domain.NewEndpoint("dup", "bad address", []uint16{443}),
	}
	in[0].Status = domain.Status{LastChecked: &now, Reachable: true, OpenPorts: []uint16{22}}

	data, err := Encode(in, 90*time.Second)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, interval, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if interval != 90*time.Second {
		t.Fatalf("interval=%v want 90s", interval)
	}
	if len(out) != len(in) {
		t.Fatalf("want %d endpoints, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i].Name != in[i].Name || out[i].Address != in[i].Address || !reflect.DeepEqual(out[i].Ports, in[i].Ports) {
			t.Fatalf("endpoint %d changed: %+v -> %+v", i, in[i], out[i])
		}
		if out[i].Status.Checked() || out[i].Status.Reachable || len(out[i].Status.OpenPorts) != 0 {
			t.Fatalf("status must be reset on import: %+v", out[i].Status)
		}
		if out[i].ID == "" || out[i].ID == in[i].ID {
			t.Fatalf("import should assign fresh ids")
		}
	}
}

func TestEncode_Shape(t *testing.T) {
	e := domain.NewEndpoint("A", "192.0.2.1", []uint16{22})
	e.Ports = []uint16{443, 22} // unsorted on purpose
	data, err := Encode([]domain.Endpoint{e}, 600*time.Second+500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"servers"`, `"refresh_interval_secs": 600`, `"ip": "192.0.2.1"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("want %s in:\n%s", want, s)
		}
	}
	for _, banned := range []string{"is_reachable", "open_ports", "last_checked", `"id"`} {
		if strings.Contains(s, banned) {
			t.Fatalf("status field %s must not be persisted:\n%s", banned, s)
		}
	}
	out, _, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out[0].Ports, []uint16{22, 443}) {
		t.Fatalf("ports not persisted sorted: %v", out[0].Ports)
	}
}

func TestDecode_SortsAndDedupesPorts(t *testing.T) {
	out, _, err := Decode([]byte(`{"servers":[{"name":"a","ip":"192.0.2.1","ports":[443,22,443]}],"refresh_interval_secs":0}`))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out[0].Ports, []uint16{22, 443}) {
		t.Fatalf("ports=%v", out[0].Ports)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"not json":       `servers = []`,
		"truncated":      `{"servers":[`,
		"missing":        `{}`,
		"no interval":    `{"servers":[]}`,
		"no servers":     `{"refresh_interval_secs":5}`,
		"port too big":   `{"servers":[{"name":"a","ip":"192.0.2.1","ports":[70000]}],"refresh_interval_secs":5}`,
		"negative secs":  `{"servers":[],"refresh_interval_secs":-1}`,
		"missing ip":     `{"servers":[{"name":"a","ports":[]}],"refresh_interval_secs":5}`,
		"huge interval":  `{"servers":[],"refresh_interval_secs":18446744073709551615}`,
		"wrong type":     `{"servers":{},"refresh_interval_secs":5}`,
		"trailing bytes": `{"servers":[],"refresh_interval_secs":5} x`,
	}
	for name, in := range cases {
		if _, _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: err=%v want ErrMalformed", name, err)
		}
	}
}

func TestFile_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	f := File{Path: filepath.Join(dir, "nested", "state.cfg")}
	if f.Exists() {
		t.Fatal("file should not exist yet")
	}
	eps := []domain.Endpoint{domain.NewEndpoint("a", "192.0.2.1", []uint16{22})}
	if err := f.Save(eps, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !f.Exists() {
		t.Fatal("file should exist after Save")
	}
	got, interval, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a" || interval != time.Minute {
		t.Fatalf("unexpected load: %+v %v", got, interval)
	}

	entries, _ := os.ReadDir(filepath.Dir(f.Path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFile_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	missing := File{Path: filepath.Join(dir, "missing.cfg")}
	_, _, err := missing.Load()
	var perr *Error
	if !errors.As(err, &perr) || perr.Op != "import" || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err=%v", err)
	}

	bad := File{Path: filepath.Join(dir, "bad.cfg")}
	if err := os.WriteFile(bad.Path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := bad.Load(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("malformed file err=%v", err)
	}

	if _, _, err := (File{}).Load(); err == nil {
		t.Fatal("empty path should fail")
	}
}

func TestFile_SaveError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// parent "directory" is a regular file
	f := File{Path: filepath.Join(blocker, "state.cfg")}
	err := f.Save(nil, time.Second)
	var perr *Error
	if !errors.As(err, &perr) || perr.Op != "export" {
		t.Fatalf("want export error, got %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("HOME", "/tmp/servermon-home")
	p, err := DefaultPath()
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join("/tmp/servermon-home", DefaultFileName) {
		t.Fatalf("DefaultPath=%q", p)
	}
}
