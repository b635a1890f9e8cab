package traversal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

var (
	// ErrElementTimeout is returned when an awaited element does not appear
	// within its bounded wait.
	ErrElementTimeout = errors.New("element wait timed out")
	// ErrStaleElement is returned when an element disappeared from the document
	// between being located and being read.
	ErrStaleElement = errors.New("element is stale")
)

// Element is a located node in a rendered page. Reads may fail with
// ErrStaleElement at any time.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Session is a stateful browser exclusively owned by one traversal.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// AwaitElement waits up to timeout for the element with the given id.
	AwaitElement(ctx context.Context, id string, timeout time.Duration) (Element, error)
	// FindAll returns every element matching a CSS selector in the current
	// document. A selector without matches yields an empty slice.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Opener acquires browser sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// WithSession acquires a session, runs fn, and releases the session on every
// exit path. Close errors are logged and swallowed.
func WithSession(ctx context.Context, opener Opener, logger *zap.Logger, fn func(Session) error) error {
	session, err := opener.Open(ctx)
	if err != nil {
		return crawler.NewError(crawler.KindTransient, "open browser session", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("browser session close failed", zap.Error(cerr))
		}
	}()
	return fn(session)
}
