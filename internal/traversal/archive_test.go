package traversal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

func TestArchiverPath(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobStore{}
	a := NewArchiver(blobs, fakeHasher{}, "/raw/", zap.NewNop())
	a.Save(context.Background(), crawler.SourceOscar, "", "unit-2012", "application/json", []byte(`[]`))

	require.Equal(t, []string{"raw/oscar/adhoc/unit-2012-abababababab.json"}, blobs.paths())
}

func TestArchiverNilIsNoop(t *testing.T) {
	t.Parallel()

	var a *Archiver
	require.NotPanics(t, func() {
		a.Save(context.Background(), crawler.SourceOscar, "job", "index", "text/html", []byte("x"))
	})
	require.Nil(t, NewArchiver(nil, fakeHasher{}, "", nil))
}

func TestArchiverSwallowsStoreErrors(t *testing.T) {
	t.Parallel()

	a := NewArchiver(&fakeBlobStore{err: errors.New("bucket missing")}, fakeHasher{}, "", zap.NewNop())
	require.NotPanics(t, func() {
		a.Save(context.Background(), crawler.SourceHockey, "job", "page-1", "text/html", []byte("<html/>"))
	})
}
