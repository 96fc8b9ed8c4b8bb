package websearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

// maxFetchBytes caps how much of a response body Extract reads, so a
// misbehaving server can't exhaust memory.
const maxFetchBytes = 10 * 1024 * 1024

// maxExtractedChars caps how much extracted text Extract returns.
const maxExtractedChars = 10000

// maxBatchConcurrency limits concurrent extractions in ExtractBatch.
const maxBatchConcurrency = 5

// ContentExtractor fetches a URL and reduces it to its readable article
// content, preferring go-shiori/go-readability's port of Mozilla's
// Readability algorithm over the raw DOM, then rendering that article
// to Markdown with html-to-markdown/v2 for callers that want it.
type ContentExtractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool // for testing only - allows localhost URLs
}

// NewContentExtractor creates a new content extractor.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewContentExtractorForTesting creates a content extractor that allows
// localhost URLs. Only ever used in tests.
func NewContentExtractorForTesting() *ContentExtractor {
	return &ContentExtractor{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		skipSSRFCheck: true,
	}
}

// Article is one fetched page reduced to its readable content.
type Article struct {
	Title       string
	Excerpt     string // page summary, from go-readability's parsed excerpt/meta description
	TextContent string
	Markdown    string
	Readable    bool // true if go-readability identified a distinct article region
}

// blockedDestination reports whether ip must never be dialed as a
// fetch target: loopback, link-local, private, unspecified, multicast,
// or the cloud metadata endpoint.
func blockedDestination(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

// guardAgainstSSRF rejects a fetch target before any request is made:
// non-http(s) schemes, missing hostnames, localhost variants, and
// hostnames that resolve to a private or reserved address. Unresolvable
// hostnames are allowed through, since DNS may be handled by an
// upstream proxy the extractor has no visibility into.
func guardAgainstSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	lowerHost := strings.ToLower(hostname)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if blockedDestination(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP address")
		}
	}
	return nil
}

// fetchPage performs the guarded GET and returns the response body
// decoded to UTF-8 alongside the final resolved URL (used as the base
// for readability's relative-link resolution and html-to-markdown's
// absolute-link rendering).
func (e *ContentExtractor) fetchPage(ctx context.Context, targetURL string) (string, *url.URL, error) {
	if !e.skipSSRFCheck {
		if err := guardAgainstSSRF(targetURL); err != nil {
			return "", nil, fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; NexusBot/1.0)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read body: %w", err)
	}

	utf8Body := raw
	if _, params, perr := mimeParams(contentType); perr == nil && params != "" && !strings.EqualFold(params, "utf-8") {
		if decoded, derr := charset.NewReaderLabel(params, bytes.NewReader(raw)); derr == nil {
			if out, rerr := io.ReadAll(decoded); rerr == nil {
				utf8Body = out
			}
		}
	}

	base, err := url.Parse(resp.Request.URL.String())
	if err != nil {
		base = req.URL
	}
	return string(utf8Body), base, nil
}

// mimeParams pulls the charset parameter, if any, out of a Content-Type
// header without pulling in the full mime package's media-type parser.
func mimeParams(contentType string) (string, string, error) {
	parts := strings.SplitN(contentType, ";", 2)
	if len(parts) < 2 {
		return parts[0], "", nil
	}
	for _, param := range strings.Split(parts[1], ";") {
		kv := strings.SplitN(strings.TrimSpace(param), "=", 2)
		if len(kv) == 2 && strings.EqualFold(strings.TrimSpace(kv[0]), "charset") {
			return parts[0], strings.Trim(strings.TrimSpace(kv[1]), `"`), nil
		}
	}
	return parts[0], "", nil
}

var tagStripper = regexp.MustCompile(`<[^>]*>`)
var titleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
var metaDescriptionTag = regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`)

// fallbackArticle builds a minimal Article straight from raw HTML for
// the cases go-readability declines to handle: pages too short or too
// script-heavy for its content-density heuristics to recognize an
// article region. It never returns an error; worst case the caller gets
// the page's stripped text with no structure.
func fallbackArticle(html string) Article {
	title := ""
	if m := titleTag.FindStringSubmatch(html); len(m) > 1 {
		title = strings.TrimSpace(tagStripper.ReplaceAllString(m[1], ""))
	}
	excerpt := ""
	if m := metaDescriptionTag.FindStringSubmatch(html); len(m) > 1 {
		excerpt = strings.TrimSpace(m[1])
	}
	text := strings.TrimSpace(tagStripper.ReplaceAllString(html, " "))
	text = strings.Join(strings.Fields(text), " ")
	return Article{Title: title, Excerpt: excerpt, TextContent: text, Markdown: text}
}

// ExtractArticle fetches targetURL and returns its readable article:
// title, plain text, and a Markdown rendering with absolute links.
func (e *ContentExtractor) ExtractArticle(ctx context.Context, targetURL string) (Article, error) {
	html, base, err := e.fetchPage(ctx, targetURL)
	if err != nil {
		return Article{}, err
	}

	art, rerr := readability.FromReader(strings.NewReader(html), base)
	textContent := strings.TrimSpace(art.TextContent)
	if rerr != nil || textContent == "" {
		return fallbackArticle(html), nil
	}

	contentHTML := art.Content
	origin := ""
	if base != nil && base.Scheme != "" && base.Host != "" {
		origin = base.Scheme + "://" + base.Host
	}
	md, mdErr := htmltomarkdown.ConvertString(contentHTML, converter.WithDomain(origin))
	if mdErr != nil || strings.TrimSpace(md) == "" {
		md = textContent
	}

	return Article{
		Title:       strings.TrimSpace(art.Title),
		Excerpt:     strings.TrimSpace(art.Excerpt),
		TextContent: textContent,
		Markdown:    strings.TrimSpace(md),
		Readable:    true,
	}, nil
}

// Extract fetches and extracts readable content from a URL, formatted as
// plain text with a leading "Title:"/"Description:" header when
// available, truncated to maxExtractedChars. ExtractBatch calls it;
// search.go and fetch.go call ExtractArticle instead.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	article, err := e.ExtractArticle(ctx, targetURL)
	if err != nil {
		return "", err
	}

	var result strings.Builder
	if article.Title != "" {
		result.WriteString("Title: ")
		result.WriteString(article.Title)
		result.WriteString("\n\n")
	}
	if article.Excerpt != "" {
		result.WriteString("Description: ")
		result.WriteString(article.Excerpt)
		result.WriteString("\n\n")
	}
	result.WriteString(article.TextContent)

	content := result.String()
	if len(content) > maxExtractedChars {
		content = content[:maxExtractedChars] + "..."
	}
	return content, nil
}

// ExtractBatch extracts content from multiple URLs concurrently, bounded
// by maxBatchConcurrency, via golang.org/x/sync/errgroup. A per-URL
// extraction failure is dropped from the result map rather than failing
// the batch.
func (e *ContentExtractor) ExtractBatch(ctx context.Context, urls []string) map[string]string {
	results := make(map[string]string)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxBatchConcurrency)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			content, err := e.Extract(ctx, u)
			if err != nil || content == "" {
				return nil
			}
			mu.Lock()
			results[u] = content
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
