package visionkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viant/afs"
)

// transport opens remote resources. http and https go through the
// configured HTTPClient; other schemes (file, mem, s3 when registered)
// go through afs.
type transport struct {
	httpClient HTTPClient
	fs         afs.Service
}

func newTransport(client HTTPClient) *transport {
	return &transport{httpClient: client, fs: afs.New()}
}

// open starts reading rawURL. The returned size is -1 when unknown.
// Non-2xx responses are errors.
func (t *transport) open(ctx context.Context, rawURL string, header http.Header) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, 0, fmt.Errorf("parsing url %q: %w", stripQuery(rawURL), err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, 0, fmt.Errorf("creating request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			var uerr *url.Error
			if errors.As(err, &uerr) {
				return nil, 0, fmt.Errorf("%s %s: %w", uerr.Op, redactURL(u), uerr.Err)
			}
			return nil, 0, fmt.Errorf("%s: %w", redactURL(u), err)
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("%s: status %d", redactURL(u), resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil
	case "":
		return nil, 0, fmt.Errorf("url %q has no scheme", stripQuery(rawURL))
	default:
		rc, err := t.fs.OpenURL(ctx, u.String())
		if err != nil {
			return nil, 0, fmt.Errorf("opening %s: %w", redactURL(u), err)
		}
		return rc, -1, nil
	}
}

// withTimeout bounds ctx by d. Non-positive durations only add cancellation.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// stageError wraps err in kind, adding ErrTimeout when the failure was a
// deadline.
func stageError(ctx context.Context, kind error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s: %v", kind, ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}

// redactURL drops the query string, which carries API keys and signatures.
func redactURL(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}

// stripQuery cuts the query and fragment from a URL that could not be parsed.
func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
