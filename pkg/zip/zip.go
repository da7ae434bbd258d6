package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
)

type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Write streams entries into a zip archive on w. Video payloads are already
// compressed, so entries are stored rather than deflated.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Store, Modified: e.Modified}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", e.Name, err)
		}
	}
	return zw.Close()
}

const maxSlugLen = 40

// EntryName builds "<nn>-<prompt-slug><ext>", e.g. "01-a-red-ball.mp4".
func EntryName(index int, prompt, ext string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(prompt) {
		if b.Len() >= maxSlugLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if r > unicode.MaxASCII {
				continue
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "video"
	}
	return fmt.Sprintf("%02d-%s%s", index, slug, ext)
}
