package tarball

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buf.Bytes()
}

func TestWalkStripsRootDirectory(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"package/package.json":  `{"name":"x"}`,
		"package/dist/index.js": "module.exports = {}",
		"package/README.md":     "hi",
	})

	var got []string
	err := Walk(bytes.NewReader(data), func(e Entry) (bool, error) {
		got = append(got, e.Path)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := map[string]bool{"package.json": true, "dist/index.js": true, "README.md": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected path %q (root not stripped?)", p)
		}
	}
}

func TestWalkEmptyRootDoesNotCrash(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"package.json": `{"name":"x"}`,
	})

	var got []string
	err := Walk(bytes.NewReader(data), func(e Entry) (bool, error) {
		got = append(got, e.Path)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 1 || got[0] != "package.json" {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestWalkStopsEarly(t *testing.T) {
	// Entries are written in a fixed order (buildTarGz ranges over a map,
	// whose order is random) so that a.js is the first entry walked.
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range []string{"package/a.js", "package/b.js", "package/c.js"} {
		_ = tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: 1, Typeflag: tar.TypeReg})
		_, _ = tw.Write([]byte("x"))
	}
	_ = tw.Close()
	_ = gz.Close()
	data := buf.Bytes()

	var got []string
	err := Walk(bytes.NewReader(data), func(e Entry) (bool, error) {
		got = append(got, e.Path)
		return e.Path != "a.js", nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected walk to stop after first match, got %v", got)
	}
}

func TestWalkSkipsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	_ = tw.WriteHeader(&tar.Header{Name: "package/real.js", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg})
	_, _ = tw.Write([]byte("x"))
	_ = tw.WriteHeader(&tar.Header{Name: "package/link.js", Typeflag: tar.TypeSymlink, Linkname: "real.js"})
	_ = tw.Close()
	_ = gz.Close()

	var got []string
	err := Walk(bytes.NewReader(buf.Bytes()), func(e Entry) (bool, error) {
		got = append(got, e.Path)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 1 || got[0] != "real.js" {
		t.Fatalf("expected symlink to be dropped, got %v", got)
	}
}
