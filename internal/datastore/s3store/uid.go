package s3store

import (
	"strings"

	"github.com/google/uuid"
)

const uidTimeLayout = "2006/01/02/15/04/05"

// fallbackName is used when the content carries no filename.
const fallbackName = "file"

// generateUID returns "<UTC time>/<random id>/<name>".
func (s *Store) generateUID(name string) string {
	if name == "" {
		name = fallbackName
	}
	return s.now().UTC().Format(uidTimeLayout) + "/" + uuid.NewString() + "/" + name
}

// storageKey maps a uid to its key in the bucket.
func (s *Store) storageKey(uid string) string {
	return joinPath(s.cfg.RootPath, uid)
}

// joinPath joins root and uid with exactly one separator at the join.
func joinPath(root, uid string) string {
	if root == "" {
		return uid
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(uid, "/")
}
