package traversal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// --- fakes ---

type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string][]Element
	stale    bool
	readErr  error
}

func (e *fakeElement) Text(context.Context) (string, error) {
	if e.stale {
		return "", ErrStaleElement
	}
	if e.readErr != nil {
		return "", e.readErr
	}
	return e.text, nil
}

func (e *fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	if e.stale {
		return "", false, ErrStaleElement
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) FindAll(_ context.Context, selector string) ([]Element, error) {
	if e.stale {
		return nil, ErrStaleElement
	}
	return e.children[selector], nil
}

type fakePage struct {
	rows           []string
	staleRows      map[int]bool
	rowErrs        map[int]error
	links          []string
	timeout        bool
	staleContainer bool
	navErr         error
}

type fakeSession struct {
	mu        sync.Mutex
	pages     map[string]fakePage
	current   string
	navigated []string
	closed    bool
	closeErr  error
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	if p, ok := s.pages[url]; ok && p.navErr != nil {
		return p.navErr
	}
	s.current = url
	return nil
}

func (s *fakeSession) AwaitElement(_ context.Context, _ string, _ time.Duration) (Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[s.current]
	if !ok || p.timeout {
		return nil, fmt.Errorf("await: %w", ErrElementTimeout)
	}
	rows := make([]Element, 0, len(p.rows))
	for i, r := range p.rows {
		rows = append(rows, &fakeElement{text: r, stale: p.staleRows[i], readErr: p.rowErrs[i]})
	}
	return &fakeElement{children: map[string][]Element{"tr": rows}, stale: p.staleContainer}, nil
}

func (s *fakeSession) FindAll(_ context.Context, selector string) ([]Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selector != ".pagination a" {
		return nil, nil
	}
	p := s.pages[s.current]
	links := make([]Element, 0, len(p.links))
	for _, href := range p.links {
		links = append(links, &fakeElement{attrs: map[string]string{"href": href}})
	}
	return links, nil
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "<html>" + s.current + "</html>", nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeSession) visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

type fakeOpener struct {
	session *fakeSession
	err     error
}

func (o *fakeOpener) Open(context.Context) (Session, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

func textParser(ctx context.Context, container Element) ([]string, error) {
	rows, err := container.FindAll(ctx, "tr")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		text, err := row.Text(ctx)
		if errors.Is(err, ErrStaleElement) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, nil
}

type recordingSink struct {
	mu    sync.Mutex
	calls [][]string
	jobs  []string
	err   error
}

func (r *recordingSink) flush(_ context.Context, jobID string, records []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.calls = append(r.calls, append([]string(nil), records...))
	r.jobs = append(r.jobs, jobID)
	return len(records), nil
}

func (r *recordingSink) persisted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c...)
	}
	return out
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.bodies[url]; ok {
		return []byte(body), nil
	}
	return nil, errors.New("404 not found")
}

type countingPacer struct {
	mu    sync.Mutex
	calls int
	done  int
}

func (p *countingPacer) Wait(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func (p *countingPacer) Done(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
}

// slowFetcher serves every URL after delay and records when each fetch
// started and finished.
type slowFetcher struct {
	mu     sync.Mutex
	delay  time.Duration
	body   func(url string) string
	starts []time.Time
	ends   []time.Time
}

func (f *slowFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, time.Now())
	return []byte(f.body(url)), nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (b *fakeBlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string]string{}
	}
	b.objects[path] = string(data)
	return "memory://" + path, nil
}

func (b *fakeBlobStore) paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	return out
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return strings.Repeat("ab", 20), nil
}
