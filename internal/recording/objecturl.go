package recording

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ObjectURLPrefix starts every URL handed out by ObjectURLs.
const ObjectURLPrefix = "blob:formframe/"

// ObjectURLs hands out addressable URLs for assembled blobs until they are revoked.
type ObjectURLs struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{blobs: make(map[string]Blob)}
}

// Create registers b and returns its URL.
func (o *ObjectURLs) Create(b Blob) string {
	id := uuid.NewString()
	o.mu.Lock()
	o.blobs[id] = b
	o.mu.Unlock()
	return ObjectURLPrefix + id
}

// Open resolves a URL created by Create.
func (o *ObjectURLs) Open(url string) (Blob, bool) {
	id, ok := ParseObjectURL(url)
	if !ok {
		return Blob{}, false
	}
	return o.Lookup(id)
}

// Lookup resolves a blob by the id part of its URL.
func (o *ObjectURLs) Lookup(id string) (Blob, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.blobs[id]
	return b, ok
}

// Revoke releases the blob behind url. Unknown URLs are ignored.
func (o *ObjectURLs) Revoke(url string) {
	id, ok := ParseObjectURL(url)
	if !ok {
		return
	}
	o.mu.Lock()
	delete(o.blobs, id)
	o.mu.Unlock()
}

func (o *ObjectURLs) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.blobs)
}

// ParseObjectURL extracts the blob id from url.
func ParseObjectURL(url string) (string, bool) {
	id, ok := strings.CutPrefix(url, ObjectURLPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
