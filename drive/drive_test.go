package drive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"iocscan/rules"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func collect(t *testing.T, d Drive, roots []string, prune PruneFunc) []File {
	t.Helper()
	var files []File
	if err := d.EnumerateFiles(roots, prune, func(f File) error {
		files = append(files, f)
		return nil
	}); err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	return files
}

func relPaths(root string, files []File) []string {
	var out []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path())
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestListAvailableDedupesAndSkipsPseudo(t *testing.T) {
	m := NewLocalManager(WithPartitions(
		Partition{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
		Partition{Device: "proc", Mountpoint: "/proc", Fstype: "proc"},
		Partition{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
		Partition{Device: "/dev/sdb1", Mountpoint: "/data", Fstype: "xfs"},
	))
	parts, err := m.ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(parts) != 2 || parts[0].Mountpoint != "/" || parts[1].Mountpoint != "/data" {
		t.Fatalf("unexpected partitions %+v", parts)
	}
}

func TestOpenMissingMountpoint(t *testing.T) {
	m := NewLocalManager()
	if _, err := m.Open("dev", filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing mountpoint")
	}
}

func TestEnumerateOrderAndPrune(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.exe":         "bbb",
		"a/one.dll":     "one",
		"a/skip/hidden": "no",
		"c/two.sys":     "two",
	})
	m := NewLocalManager(WithPartitions(Partition{Device: "tmp", Mountpoint: root}))
	m.ListAvailable(context.Background())
	d, err := m.Open("tmp", root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	prune := func(path string) bool {
		return !strings.HasSuffix(filepath.ToSlash(path), "/a/skip")
	}
	got := relPaths(root, collect(t, d, nil, prune))
	want := []string{".", "a", "a/one.dll", "b.exe", "c", "c/two.sys"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEnumerateSkipsForeignMounts(t *testing.T) {
	root := t.TempDir()
	inner := filepath.Join(root, "inner")
	writeTree(t, root, map[string]string{
		"outer.txt":       "o",
		"inner/inner.txt": "i",
	})
	m := NewLocalManager(WithPartitions(
		Partition{Device: "outer", Mountpoint: root},
		Partition{Device: "inner", Mountpoint: inner},
	))
	m.ListAvailable(context.Background())

	outer, _ := m.Open("outer", root)
	got := relPaths(root, collect(t, outer, nil, nil))
	if strings.Join(got, ",") != ".,outer.txt" {
		t.Fatalf("outer drive walked into inner mount: %v", got)
	}

	innerDrive, _ := m.Open("inner", inner)
	got = relPaths(root, collect(t, innerDrive, []string{filepath.Join(inner, "inner.txt"), filepath.Join(root, "outer.txt")}, nil))
	if strings.Join(got, ",") != "inner/inner.txt" {
		t.Fatalf("inner drive walked a root it does not own: %v", got)
	}
}

func TestLocalFileStreams(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Sample.EXE": "hello world"})
	m := NewLocalManager(WithPartitions(Partition{Device: "tmp", Mountpoint: root}))
	d, _ := m.Open("tmp", root)

	var file File
	collectErr := d.EnumerateFiles([]string{filepath.Join(root, "Sample.EXE")}, nil, func(f File) error {
		file = f
		return nil
	})
	if collectErr != nil || file == nil {
		t.Fatalf("enumerate: %v", collectErr)
	}
	if file.Name() != "Sample.EXE" || file.Ext() != ".EXE" || file.IsDir() || file.IsDeleted() {
		t.Fatalf("unexpected accessors: %s %s", file.Name(), file.Ext())
	}
	streams := file.Streams()
	if len(streams) == 0 || streams[0].Name != "" || streams[0].Size != 11 || streams[0].Suffix() != "" {
		t.Fatalf("unexpected primary stream %+v", streams)
	}
	if streams[0].ModTime.IsZero() {
		t.Fatal("missing modification time")
	}

	fp, err := file.Fingerprint("")
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fp.MD5Hex() != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Fatalf("md5 mismatch %s", fp.MD5Hex())
	}

	r, err := file.Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	content, _ := io.ReadAll(r)
	r.Close()
	if string(content) != "hello world" {
		t.Fatalf("unexpected content %q", content)
	}

	if _, err := file.Open("missing"); !errors.Is(err, ErrNoSuchStream) {
		t.Fatalf("expected ErrNoSuchStream, got %v", err)
	}

	set, _ := rules.CompileLiteral([]rules.LiteralRule{{Namespace: "n", Name: "r", Strings: []string{"world"}}})
	matches, err := file.ScanRules(set, "", true)
	if err != nil || len(matches) != 1 || matches[0].ID() != "n:r" {
		t.Fatalf("scan: %+v %v", matches, err)
	}

	if err := os.Remove(filepath.Join(root, "Sample.EXE")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := file.Fingerprint(""); err == nil || !strings.Contains(err.Error(), "Sample.EXE") {
		t.Fatalf("expected open error naming the file, got %v", err)
	}
}

func TestStreamSuffix(t *testing.T) {
	if (Stream{Name: "Zone.Identifier"}).Suffix() != ":Zone.Identifier" {
		t.Fatal("bad suffix")
	}
}

func TestMIMEType(t *testing.T) {
	root := t.TempDir()
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	writeTree(t, root, map[string]string{"img.bin": png, "plain.txt": "just text"})
	m := NewLocalManager()
	d, _ := m.Open("tmp", root)
	types := map[string]string{}
	d.EnumerateFiles(nil, nil, func(f File) error {
		if f.IsDir() {
			return nil
		}
		mime, err := MIMEType(f, "")
		if err != nil {
			t.Fatalf("mime: %v", err)
		}
		types[f.Name()] = mime
		return nil
	})
	if types["img.bin"] != "image/png" {
		t.Fatalf("expected image/png, got %q", types["img.bin"])
	}
	if types["plain.txt"] != "" {
		t.Fatalf("expected unknown type, got %q", types["plain.txt"])
	}
}

func TestStatTimes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"f": "x"})
	ts, err := StatTimes(filepath.Join(root, "f"))
	if err != nil || ts.Modified.IsZero() {
		t.Fatalf("stat times: %+v %v", ts, err)
	}
}
