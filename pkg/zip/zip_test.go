package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Name: "01-a.mp4", Data: []byte("first"), Modified: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "02-b.mp4", Data: []byte("second")},
	}
	if err := Write(&buf, entries); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d, want 2", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != entries[i].Name || f.Method != zip.Store {
			t.Fatalf("file %d = %s method %d", i, f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != string(entries[i].Data) {
			t.Fatalf("data = %q", data)
		}
	}
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{prompt: "A red ball, bouncing!", want: "03-a-red-ball-bouncing.mp4"},
		{prompt: "   ", want: "03-video.mp4"},
		{prompt: "café au lait", want: "03-caf-au-lait.mp4"},
		{prompt: "a very long prompt that goes on and on past the limit", want: "03-a-very-long-prompt-that-goes-on-and-on-p.mp4"},
	}
	for _, tc := range tests {
		if got := EntryName(3, tc.prompt, ".mp4"); got != tc.want {
			t.Errorf("EntryName(%q) = %q, want %q", tc.prompt, got, tc.want)
		}
	}
}
