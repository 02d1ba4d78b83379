// Package blocklist loads and matches the set of names the resolver answers
// negatively for. The list is immutable once loaded.
package blocklist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"advoid/pkg/logging"

	"github.com/miekg/dns"
)

// DefaultHTTPTimeout bounds a blocklist fetch over HTTP.
const DefaultHTTPTimeout = 60 * time.Second

// List is an immutable set of canonical (lowercase, dot-terminated) names.
type List struct {
	names map[string]struct{}
}

// Load reads a blocklist from source, which is either a filesystem path or
// an http(s) URL. Loader failures are fatal during start-up; the caller
// decides that.
func Load(ctx context.Context, source string, client *http.Client, logger *logging.Logger) (*List, error) {
	start := time.Now()

	var (
		names map[string]struct{}
		err   error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		names, err = fetch(ctx, source, client)
	} else {
		names, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Blocklist loaded",
		"source", source,
		"names", len(names),
		"duration", time.Since(start),
	)

	return &List{names: names}, nil
}

// FromNames builds a list directly, canonicalising each entry. Used by
// tests and anywhere a list is assembled in memory.
func FromNames(names ...string) *List {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[dns.CanonicalName(n)] = struct{}{}
	}
	return &List{names: set}
}

func fetch(ctx context.Context, url string, client *http.Client) (map[string]struct{}, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download blocklist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code downloading blocklist: %d", resp.StatusCode)
	}

	return parse(resp.Body)
}

func readFile(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parse(f)
}

// parse applies the line rules: trim whitespace, drop empties and #-comments,
// lowercase, canonicalise to FQDN. Duplicates coalesce.
func parse(r io.Reader) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("blocklist contains invalid UTF-8")
		}

		names[dns.CanonicalName(line)] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading blocklist: %w", err)
	}

	return names, nil
}

// Match reports whether name (canonical form) is blocked: an exact entry, or
// a subdomain of one on a label boundary. "bad.com." does not match an
// "ad.com." entry; "x.y.ad.com." does. Walking parent labels instead of
// scanning the set keeps this O(labels in name).
func (l *List) Match(name string) bool {
	for {
		if _, ok := l.names[name]; ok {
			return true
		}
		idx := strings.IndexByte(name, '.')
		if idx < 0 || idx == len(name)-1 {
			return false
		}
		name = name[idx+1:]
	}
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.names)
}
