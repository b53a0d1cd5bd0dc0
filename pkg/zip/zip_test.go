package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "script.txt", MIME: "text/plain", Data: []byte("TITLE: T")},
		{Filename: "empty.bin"},
		{Filename: "frames/scene_001.jpg", MIME: "image/jpeg", Data: []byte{0xff, 0xd8}},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets returned error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if zr.File[0].Name != "script.txt" || string(body) != "TITLE: T" {
		t.Fatalf("first entry = %s %q", zr.File[0].Name, body)
	}
}

func TestArchiveAssetsRejectsDuplicates(t *testing.T) {
	_, err := ArchiveAssets([]Asset{
		{Filename: "a.txt", Data: []byte("1")},
		{Filename: "a.txt", Data: []byte("2")},
	})
	if err == nil {
		t.Fatalf("expected duplicate entry error")
	}
}
