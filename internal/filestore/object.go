package filestore

import (
	"io"
	"net/http"
)

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Header returns the storage headers the object was written with
	// (Content-Type, x-amz-meta-*, …). Lookups are case-insensitive.
	Header() http.Header
}

// NewObject pairs a body with its headers.
func NewObject(body io.ReadCloser, header http.Header) Object {
	if header == nil {
		header = http.Header{}
	}
	return &object{ReadCloser: body, header: header}
}

// object is the Object returned by every provider in this module.
type object struct {
	io.ReadCloser
	header http.Header
}

func (o *object) Header() http.Header {
	return o.header
}

// HeaderFrom converts raw write headers into an http.Header.
func HeaderFrom(headers map[string]string) http.Header {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}
