package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/html"

	"github.com/i474232898/radar-composite/internal/radar"
)

// Source lists and transfers remote snapshot files.
type Source interface {
	// List returns the base names of the available snapshot files.
	List(ctx context.Context) ([]string, error)
	// Size returns the advertised byte size of name, or -1 if unknown.
	Size(ctx context.Context, name string) (int64, error)
	// Fetch streams the bytes of name. The caller closes the reader.
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)
}

// HTTPSource reads snapshots from a web server directory index, such as
// https://mrms.ncep.noaa.gov/data/2D/MergedReflectivityComposite/.
type HTTPSource struct {
	base    *url.URL
	suffix  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewHTTPSource creates a source for the directory index at baseURL that
// lists files ending in suffix.
func NewHTTPSource(client *http.Client, baseURL, suffix string, backoff BackoffConfig) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "radar-remote",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &HTTPSource{
		base:   base,
		suffix: suffix,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: cb,
	}, nil
}

// URL returns the remote location of name.
func (s *HTTPSource) URL(name string) string {
	return s.base.JoinPath(name).String()
}

func (s *HTTPSource) List(ctx context.Context) ([]string, error) {
	resp, err := s.do(ctx, http.MethodGet, s.base.String())
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", radar.ErrTransfer, s.base, err)
	}
	defer resp.Body.Close()

	names, err := parseIndex(resp.Body, s.base, s.suffix)
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing: %w", radar.ErrTransfer, err)
	}
	return names, nil
}

func (s *HTTPSource) Size(ctx context.Context, name string) (int64, error) {
	resp, err := s.do(ctx, http.MethodHead, s.URL(name))
	if err != nil {
		return 0, fmt.Errorf("%w: head %s: %w", radar.ErrTransfer, name, err)
	}
	resp.Body.Close()
	return resp.ContentLength, nil
}

func (s *HTTPSource) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, s.URL(name))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", radar.ErrTransfer, name, err)
	}
	return resp.Body, nil
}

func (s *HTTPSource) do(ctx context.Context, method, u string) (*http.Response, error) {
	return doRequestWithResilience(ctx, s.httpCfg, s.circuit, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, method, u, nil)
	})
}

// parseIndex collects the anchors of an HTML directory index that point at
// files with the given suffix, returned as sorted unique base names.
func parseIndex(r io.Reader, base *url.URL, suffix string) ([]string, error) {
	seen := make(map[string]struct{})
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				names := make([]string, 0, len(seen))
				for name := range seen {
					names = append(names, name)
				}
				sort.Strings(names)
				return names, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				name := path.Base(base.ResolveReference(ref).Path)
				if strings.HasSuffix(name, suffix) && name != suffix {
					seen[name] = struct{}{}
				}
			}
		}
	}
}
