package crawler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	base := errors.New("dial tcp: refused")
	wrapped := fmt.Errorf("open entry page: %w", NewError(KindSourceUnavailable, "await #hockey", base))

	require.Equal(t, KindSourceUnavailable, KindOf(wrapped))
	require.True(t, errors.Is(wrapped, base))
	require.Equal(t, KindTraversal, KindOf(base))
}

func TestIsKindWalksNestedErrors(t *testing.T) {
	t.Parallel()

	inner := NewError(KindMalformed, "decode", errors.New("bad json"))
	outer := NewError(KindTraversal, "page 3", inner)

	require.True(t, IsKind(outer, KindTraversal))
	require.True(t, IsKind(outer, KindMalformed))
	require.False(t, IsKind(outer, KindTransient))
	require.False(t, IsKind(errors.New("plain"), KindTraversal))
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	require.Empty(t, RenderError(nil))

	err := NewError(KindTraversal, "navigate page 2", fmt.Errorf("chromedp run: %w", errors.New("net::ERR_FAILED")))
	out := RenderError(err)

	lines := strings.Split(out, "\n")
	require.Equal(t, "traversal: navigate page 2: chromedp run: net::ERR_FAILED", lines[0])
	require.Len(t, lines, 3)
	require.Contains(t, lines[2], "net::ERR_FAILED")
}

func TestErrorMessageVariants(t *testing.T) {
	t.Parallel()

	require.Equal(t, "op only", (&Error{Kind: KindPartial, Op: "op only"}).Error())
	require.Equal(t, "cause", (&Error{Kind: KindPartial, Err: errors.New("cause")}).Error())
}
