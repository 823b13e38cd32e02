package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"regexp"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/starford/minto/internal/generation"
)

const (
	maxDocumentBytes = 20 << 20
	fetchTimeout     = 30 * time.Second
	maxRedirects     = 5
)

var errBlockedAddress = errors.New("blocked address")

var (
	// documentTypes maps the media types synthesize_document accepts to the
	// extension used when a name has none.
	documentTypes = map[string]string{
		"application/pdf": ".pdf",
		"text/plain":      ".txt",
		"text/markdown":   ".md",
		"text/x-markdown": ".md",
	}

	documentExts = map[string]bool{".pdf": true, ".txt": true, ".md": true, ".markdown": true}

	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._ -]`)

	reservedPrefixes = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("100.64.0.0/10"),
		netip.MustParsePrefix("198.18.0.0/15"),
	}
)

// documentLoader turns the url argument of synthesize_document into a
// generation.Document. Every connection it opens is checked against the
// address actually dialled, so redirects and DNS answers go through the same
// filter.
type documentLoader struct {
	client   *http.Client
	maxBytes int64
}

func newDocumentLoader() *documentLoader {
	return newDocumentLoaderFor(publicAddr)
}

// newDocumentLoaderFor builds a loader that only connects to addresses for
// which allow returns true.
func newDocumentLoaderFor(allow func(netip.Addr) bool) *documentLoader {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return fmt.Errorf("%w: %s", errBlockedAddress, address)
			}
			if addr := ap.Addr().Unmap(); !allow(addr) {
				return fmt.Errorf("%w: %s", errBlockedAddress, addr)
			}
			return nil
		},
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: fetchTimeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}
	return &documentLoader{
		client: &http.Client{
			Transport: transport,
			Timeout:   fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
		maxBytes: maxDocumentBytes,
	}
}

// publicAddr reports whether addr is a globally routable unicast address.
func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// Load resolves a data: URI or an http(s) URL. filename overrides the name
// derived from the URL.
func (l *documentLoader) Load(ctx context.Context, rawURL, filename string) (*generation.Document, error) {
	var (
		data      []byte
		mediaType string
		err       error
	)
	if strings.HasPrefix(rawURL, "data:") {
		data, mediaType, err = decodeDataURI(rawURL)
	} else {
		data, mediaType, err = l.fetch(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("document too large: %d bytes (max %d)", len(data), l.maxBytes)
	}

	name := documentName(rawURL, filename, mediaType)
	ext := strings.ToLower(path.Ext(name))
	if !documentExts[ext] {
		return nil, fmt.Errorf("unsupported document type %q (allowed: pdf, txt, md)", ext)
	}
	if err := checkContent(data, ext); err != nil {
		return nil, err
	}

	doc := &generation.Document{Data: data, Filename: name}
	doc.MIMEType = generation.DetectMIME(*doc)
	return doc, nil
}

func (l *documentLoader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid document url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q (only http, https and data)", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid document url: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download document: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download document: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return data, mediaType, nil
}

// decodeDataURI parses data:<mediatype>;base64,<data>.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: missing comma")
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("only base64 data URIs are supported")
	}
	mediaType, _, err := mime.ParseMediaType(meta)
	if err != nil || documentTypes[mediaType] == "" {
		return nil, "", fmt.Errorf("unsupported data URI media type %q", meta)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, mediaType, nil
}

// documentName picks the file name handed to the generator: the explicit
// filename, else the last URL path segment. Directories and unsafe characters
// are stripped; a name without extension gets one from the media type.
func documentName(rawURL, filename, mediaType string) string {
	name := filename
	if name == "" && !strings.HasPrefix(rawURL, "data:") {
		if u, err := url.Parse(rawURL); err == nil {
			name = u.Path
		}
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSpace(unsafeNameChars.ReplaceAllString(name, "_"))
	if name == "" || name == "." || name == "/" {
		name = "document"
	}
	if path.Ext(name) == "" {
		ext := documentTypes[mediaType]
		if ext == "" {
			ext = ".txt"
		}
		name += ext
	}
	return name
}

func checkContent(data []byte, ext string) error {
	if ext == ".pdf" {
		if detected := http.DetectContentType(data); detected != "application/pdf" {
			return fmt.Errorf("document is not a PDF (detected %s)", detected)
		}
		return nil
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%s document is not UTF-8 text", ext)
	}
	return nil
}
