// Package epub implements the archive container codec: decoding an EPUB
// byte blob into an ordered manifest of named entries and encoding a
// manifest back into a blob with a fixed maximal compression setting.
//
// The codec is deliberately format-agnostic beyond ZIP structure. It does
// not validate EPUB well-formedness and does not touch internal references
// (OPF manifest, spine); entries round-trip byte-exact unless replaced.
package epub

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"strings"
)

// Entry is a single named member of an archive manifest. Directory entries
// carry no data. Entries are immutable once read; replacing an entry's
// bytes goes through Manifest.Put.
type Entry struct {
	// Path is the entry name as stored in the archive.
	Path string
	// IsDir marks a directory member (no data).
	IsDir bool
	// Data is the entry payload. Nil for directories.
	Data []byte
}

// Manifest is an ordered collection of archive entries, one per path.
// Insertion order is preserved so reassembly is deterministic: entries
// encode in the same order they were first inserted, regardless of which
// worker finished first.
type Manifest struct {
	order   []string
	entries map[string]*Entry
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{entries: make(map[string]*Entry)}
}

// Put inserts an entry, or replaces the data of an existing entry at the
// same path. A path never appears twice in the manifest.
func (m *Manifest) Put(e Entry) {
	if existing, ok := m.entries[e.Path]; ok {
		existing.IsDir = e.IsDir
		existing.Data = e.Data
		return
	}
	stored := e
	m.order = append(m.order, e.Path)
	m.entries[e.Path] = &stored
}

// Get returns the entry at path, if present.
func (m *Manifest) Get(path string) (*Entry, bool) {
	e, ok := m.entries[path]
	return e, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.order)
}

// Entries returns all entries in insertion order.
func (m *Manifest) Entries() []*Entry {
	out := make([]*Entry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.entries[p])
	}
	return out
}

// Files returns the non-directory entries in insertion order.
func (m *Manifest) Files() []*Entry {
	out := make([]*Entry, 0, len(m.order))
	for _, e := range m.Entries() {
		if !e.IsDir {
			out = append(out, e)
		}
	}
	return out
}

// Dirs returns the directory entries in insertion order.
func (m *Manifest) Dirs() []*Entry {
	out := make([]*Entry, 0)
	for _, e := range m.Entries() {
		if e.IsDir {
			out = append(out, e)
		}
	}
	return out
}

// Decode reads a ZIP-structured archive into a manifest. Entry order
// follows the archive's central directory. Binary payloads are preserved
// exactly.
func Decode(b []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}

	m := NewManifest()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			m.Put(Entry{Path: f.Name, IsDir: true})
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %q: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %q: %w", f.Name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close entry %q: %w", f.Name, closeErr)
		}

		m.Put(Entry{Path: f.Name, Data: data})
	}
	return m, nil
}

// Encode writes the manifest back into a ZIP blob. Every file entry is
// deflated at the maximal compression level; directory entries are written
// as zero-byte members with a trailing slash.
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, e := range m.Entries() {
		if e.IsDir {
			name := e.Path
			if !strings.HasSuffix(name, "/") {
				name += "/"
			}
			if _, err := zw.Create(name); err != nil {
				zw.Close()
				return nil, fmt.Errorf("write directory %q: %w", e.Path, err)
			}
			continue
		}

		hdr := &zip.FileHeader{Name: e.Path, Method: zip.Deflate}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("create entry %q: %w", e.Path, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("write entry %q: %w", e.Path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
