package s3store

import (
	"encoding/json"
	"maps"
	"net/http"
	"net/url"

	"github.com/koustreak/contentstore/internal/content"
	"github.com/koustreak/contentstore/internal/errs"
)

const (
	// MetaHeader carries item metadata as JSON with string values
	// query-escaped.
	MetaHeader = "x-amz-meta-json"

	// LegacyMetaHeader carries metadata written by older releases.
	LegacyMetaHeader = "x-amz-meta-extra"
)

type metaDecoder struct {
	header string
	decode func(string) (content.Meta, error)
}

// metaDecoders are tried in order; the first header present with a
// non-empty value wins.
var metaDecoders = []metaDecoder{
	{header: MetaHeader, decode: decodeJSONMeta},
	{header: LegacyMetaHeader, decode: DecodeLegacyMeta},
}

// storageHeaders merges the headers for one write. Later sources win:
// store defaults, then the metadata header, then per-write headers.
func (s *Store) storageHeaders(headers map[string]string, meta content.Meta) (map[string]string, error) {
	metaHeaders, err := metaToHeaders(meta)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.cfg.StorageHeaders)+len(metaHeaders)+len(headers))
	maps.Copy(out, s.cfg.StorageHeaders)
	maps.Copy(out, metaHeaders)
	maps.Copy(out, headers)
	return out, nil
}

func metaToHeaders(meta content.Meta) (map[string]string, error) {
	escaped := make(content.Meta, len(meta))
	for k, v := range meta {
		if str, ok := v.AsString(); ok {
			v = content.String(url.QueryEscape(str))
		}
		escaped[k] = v
	}
	data, err := json.Marshal(escaped)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode metadata", err)
	}
	return map[string]string{MetaHeader: string(data)}, nil
}

// headersToMeta returns nil when no metadata header is present.
func headersToMeta(h http.Header) (content.Meta, error) {
	for _, d := range metaDecoders {
		if v := h.Get(d.header); v != "" {
			return d.decode(v)
		}
	}
	return nil, nil
}

func decodeJSONMeta(raw string) (content.Meta, error) {
	var meta content.Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed metadata header", err)
	}
	for k, v := range meta {
		str, ok := v.AsString()
		if !ok {
			continue
		}
		// Values that do not unescape cleanly are kept as stored.
		if plain, err := url.QueryUnescape(str); err == nil {
			meta[k] = content.String(plain)
		}
	}
	return meta, nil
}
