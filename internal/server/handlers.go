package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/contentstore/internal/content"
	"github.com/koustreak/contentstore/internal/datastore"
	"github.com/koustreak/contentstore/internal/errs"
)

type writeResponse struct {
	UID string `json:"uid"`
	URL string `json:"url"`
}

type urlResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	meta, err := parseMeta(r.Header.Get(MetaHeader))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "failed to read request body", err))
		return
	}

	q := r.URL.Query()
	item := &content.Item{
		Data:     data,
		MimeType: r.Header.Get("Content-Type"),
		Name:     q.Get("name"),
		Meta:     meta,
	}
	uid, err := s.store.Write(r.Context(), item, datastore.WriteOptions{Path: q.Get("path")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.store.URLFor(r.Context(), uid, datastore.URLOptions{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, writeResponse{UID: uid, URL: u})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	uid, err := wildcardUID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, ok, err := s.store.Read(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}

	if rec.Meta != nil {
		raw, err := json.Marshal(rec.Meta)
		if err != nil {
			s.writeError(w, r, errs.Wrap(errs.ErrKindUnknown, "failed to encode metadata", err))
			return
		}
		w.Header().Set(MetaHeader, string(raw))
	}
	w.Header().Set("Content-Type", http.DetectContentType(rec.Data))
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Data)
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	uid, err := wildcardUID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.Destroy(r.Context(), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	uid, err := wildcardUID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := datastore.URLOptions{
		Scheme: q.Get("scheme"),
		Host:   q.Get("host"),
	}
	if raw := q.Get("expires"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "expires must be a unix timestamp", err))
			return
		}
		opts.Expires = time.Unix(sec, 0)
	}

	u, err := s.store.URLFor(r.Context(), uid, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: u})
}

// wildcardUID extracts the uid matched by a trailing "*" route. chi matches
// on the escaped path when the request has one, so the value is unescaped
// in that case.
func wildcardUID(r *http.Request) (string, error) {
	uid := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		var err error
		if uid, err = url.PathUnescape(uid); err != nil {
			return "", errs.Wrap(errs.ErrKindInvalidInput, "malformed uid", err)
		}
	}
	if uid == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "uid is required")
	}
	return uid, nil
}

func parseMeta(raw string) (content.Meta, error) {
	if raw == "" {
		return nil, nil
	}
	var meta content.Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed "+MetaHeader+" header", err)
	}
	return meta, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		})
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindNotConfigured:
		return http.StatusServiceUnavailable
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
