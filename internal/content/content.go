// Package content defines the items a data store persists: an opaque payload
// plus a MIME type, a display name and a metadata mapping.
package content

import (
	"bytes"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// DefaultMimeType is used when neither the item nor its name says otherwise.
const DefaultMimeType = "application/octet-stream"

// Content is the capability a data store consumes. Open may be called more
// than once (a write that is retried re-reads the payload from the start).
type Content interface {
	ContentType() string
	Filename() string
	Metadata() Meta
	Open() (io.ReadCloser, error)

	// Size is the payload length in bytes, or -1 when unknown.
	Size() int64
}

// Item is an in-memory Content.
type Item struct {
	Data     []byte
	MimeType string
	Name     string
	Meta     Meta
}

// NewItem returns an Item holding data.
func NewItem(data []byte, name string, meta Meta) *Item {
	return &Item{Data: data, Name: name, Meta: meta}
}

// ContentType returns MimeType, falling back to the type registered for the
// name's extension.
func (i *Item) ContentType() string {
	return resolveMimeType(i.MimeType, i.Name)
}

func (i *Item) Filename() string { return i.Name }

func (i *Item) Metadata() Meta { return i.Meta }

func (i *Item) Size() int64 { return int64(len(i.Data)) }

func (i *Item) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(i.Data)), nil
}

// File is a Content backed by a file on disk. The file is opened lazily on
// every Open call.
type File struct {
	Path     string
	MimeType string
	Name     string // defaults to the base name of Path
	Meta     Meta
}

func (f *File) ContentType() string {
	return resolveMimeType(f.MimeType, f.Filename())
}

func (f *File) Filename() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

func (f *File) Metadata() Meta { return f.Meta }

func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

func (f *File) Size() int64 {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

func resolveMimeType(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return DefaultMimeType
}

var (
	_ Content = (*Item)(nil)
	_ Content = (*File)(nil)
)
