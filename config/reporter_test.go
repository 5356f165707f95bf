package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readArchive(t *testing.T, name string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("unable to open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("unable to read %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestReportArchive(t *testing.T) {
	dir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(dir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	src := filepath.Join(dir, "source.html")
	if err := os.WriteFile(src, []byte("<p>original</p>"), 0644); err != nil {
		t.Fatal(err)
	}
	logFile := filepath.Join(dir, "final.log")
	if err := os.WriteFile(logFile, []byte("log line"), 0644); err != nil {
		t.Fatal(err)
	}

	r.Store("final.log", logFile)
	if err := r.StoreCopy("source", src); err != nil {
		t.Fatalf("StoreCopy() error = %v", err)
	}
	// copy is taken at the time of the call
	if err := os.WriteFile(src, []byte("<p>changed</p>"), 0644); err != nil {
		t.Fatal(err)
	}
	r.StoreData("snapshots/latest.html", []byte("v1"))
	r.StoreData("snapshots/latest.html", []byte("v2"))

	temps := append([]string(nil), r.temps...)
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files := readArchive(t, conf.Destination)
	if files["final.log"] != "log line" {
		t.Errorf("stored log = %q", files["final.log"])
	}
	if files["source"] != "<p>original</p>" {
		t.Errorf("stored copy = %q", files["source"])
	}
	if files["snapshots/latest.html"] != "v1" {
		t.Errorf("first snapshot = %q", files["snapshots/latest.html"])
	}
	versioned := 0
	for name, data := range files {
		if strings.HasPrefix(name, "snapshots/latest.html-") && data == "v2" {
			versioned++
		}
	}
	if versioned != 1 {
		t.Errorf("repeated data must be versioned, got %v", files)
	}
	if !strings.Contains(files["MANIFEST"], "final.log") {
		t.Errorf("manifest incomplete: %s", files["MANIFEST"])
	}

	for _, d := range temps {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("temporary copy %s not removed", d)
		}
	}
	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("stored file must not be removed: %v", err)
	}
}

func TestReportClose_NilReport(t *testing.T) {
	var r *Report
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil report should not error, got: %v", err)
	}
	r.Store("x", "y")
	r.StoreData("x", nil)
	if err := r.StoreCopy("x", "y"); err != nil {
		t.Errorf("StoreCopy on nil report should not error, got: %v", err)
	}
	if r.Name() != "" {
		t.Errorf("nil report has no name")
	}
}

func TestReportClose_NilFile(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	if err := r.Close(); err != nil {
		t.Errorf("Close with nil file should not error, got: %v", err)
	}
}

func TestReportStoreConflict(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	r.Store("a", "/one")
	r.Store("a", "/one")
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on conflicting store")
		}
	}()
	r.Store("a", "/two")
}
