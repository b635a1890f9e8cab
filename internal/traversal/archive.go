package traversal

import (
	"bytes"
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

// Archiver stores raw fetched pages next to the records parsed from them.
// Failures are logged and never interrupt a traversal. A nil *Archiver is a
// valid no-op.
type Archiver struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// NewArchiver returns an Archiver, or nil when store is nil.
func NewArchiver(store crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *Archiver {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Save writes data under prefix/source/job/label-digest.ext.
func (a *Archiver) Save(ctx context.Context, source crawler.Source, jobID, label, contentType string, data []byte) {
	if a == nil || len(data) == 0 {
		return
	}
	objectPath, err := a.objectPath(source, jobID, label, contentType, data)
	if err != nil {
		a.logger.Warn("archive hash failed", zap.String("label", label), zap.Error(err))
		return
	}
	uri, err := a.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		a.logger.Warn("archive write failed", zap.String("path", objectPath), zap.Error(err))
		return
	}
	a.logger.Debug("page archived", zap.String("uri", uri))
}

func (a *Archiver) objectPath(source crawler.Source, jobID, label, contentType string, data []byte) (string, error) {
	digest, err := a.hasher.Hash(data)
	if err != nil {
		return "", err
	}
	if len(digest) > 12 {
		digest = digest[:12]
	}
	if jobID == "" {
		jobID = "adhoc"
	}
	name := label + "-" + digest + extension(contentType)
	return path.Join(a.prefix, string(source), jobID, name), nil
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.Contains(contentType, "html"):
		return ".html"
	default:
		return ".bin"
	}
}
