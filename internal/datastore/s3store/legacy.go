package s3store

import (
	"encoding/base64"
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/koustreak/contentstore/internal/content"
	"github.com/koustreak/contentstore/internal/errs"
)

// EncodeLegacyMeta renders meta the way the LegacyMetaHeader is stored:
// a base64 MessagePack map. The store never writes this format; it is kept
// for tooling and tests.
func EncodeLegacyMeta(meta content.Meta) (string, error) {
	m := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		m[k] = v.Interface()
	}
	b, err := msgp.AppendMapStrIntf(nil, m)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to encode legacy metadata", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeLegacyMeta parses a LegacyMetaHeader value. Non-string keys are
// converted to their printed form.
func DecodeLegacyMeta(raw string) (content.Meta, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed legacy metadata header", err)
	}

	sz, rest, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed legacy metadata header", err)
	}

	meta := make(content.Meta, sz)
	for i := uint32(0); i < sz; i++ {
		var k, v interface{}
		if k, rest, err = msgp.ReadIntfBytes(rest); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed legacy metadata key", err)
		}
		if v, rest, err = msgp.ReadIntfBytes(rest); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed legacy metadata value", err)
		}
		val, err := content.ValueOf(v)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "unsupported legacy metadata value", err)
		}
		meta[keyString(k)] = val
	}
	return meta, nil
}

func keyString(k interface{}) string {
	switch t := k.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
