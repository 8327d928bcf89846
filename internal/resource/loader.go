package resource

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/PuerkitoBio/goquery"
	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Scheme prefixes understood by the loader.
const (
	SchemeLocal = "local:"
	SchemeFile  = "file://"
	BlankURL    = "about:blank"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrOutsideRoot       = errors.New("path escapes resource root")
	ErrUnsupportedType   = errors.New("unsupported content type")
)

// Script is one piece of page code, run in document order.
type Script struct {
	// URL names the script in stack traces.
	URL  string
	Code string
}

// Page is everything the renderer needs to populate a fresh context.
type Page struct {
	URL      string
	Title    string
	MimeType string
	Scripts  []Script
}

// Loader resolves page urls against a resource root and extracts their scripts.
type Loader struct {
	root   string
	logger *logging.Logger
}

// NewLoader creates a loader serving local: urls from root.
func NewLoader(root string, logger *logging.Logger) (*Loader, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve resource root: %w", err)
	}
	return &Loader{root: abs, logger: logger}, nil
}

// Root returns the absolute resource root.
func (l *Loader) Root() string {
	return l.root
}

// IsLocal reports whether rawURL uses a scheme served from disk.
func IsLocal(rawURL string) bool {
	return strings.HasPrefix(rawURL, SchemeLocal) || strings.HasPrefix(rawURL, SchemeFile)
}

// Resolve maps a local: or file:// url to a file path. Directories resolve
// to their index.html.
func (l *Loader) Resolve(rawURL string) (string, error) {
	var path string
	switch {
	case strings.HasPrefix(rawURL, SchemeLocal):
		rel := strings.TrimLeft(strings.TrimPrefix(rawURL, SchemeLocal), "/")
		rel = stripQuery(rel)
		if rel == "" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
		}
		path = filepath.Join(l.root, filepath.FromSlash(rel))
		if path != l.root && !strings.HasPrefix(path, l.root+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rawURL)
		}
	case strings.HasPrefix(rawURL, SchemeFile):
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		path = filepath.FromSlash(u.Path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
	}

	path = strings.TrimRight(path, string(filepath.Separator))
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if info.IsDir() {
		path = filepath.Join(path, "index.html")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
		}
	}
	return path, nil
}

// Read resolves rawURL and returns the file contents with their detected mime type.
func (l *Loader) Read(rawURL string) ([]byte, *mimetype.MIME, error) {
	path, err := l.Resolve(rawURL)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, detect(path, data), nil
}

// Load reads a page and returns its scripts. HTML pages contribute their
// inline and src scripts; .js and .ts files are pages of a single script.
func (l *Loader) Load(rawURL string) (*Page, error) {
	if rawURL == "" || rawURL == BlankURL {
		return &Page{URL: BlankURL, MimeType: "text/html"}, nil
	}

	path, err := l.Resolve(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	mime := detect(path, data)
	page := &Page{URL: rawURL, MimeType: mime.String()}

	switch {
	case isScript(path):
		code, err := transform(path, data)
		if err != nil {
			return nil, err
		}
		page.Scripts = []Script{{URL: rawURL, Code: code}}
	case mime.Is("text/html"):
		if err := l.extractScripts(page, l.baseURL(rawURL, path), data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}

	l.logger.Debug("Page loaded",
		zap.String("url", rawURL),
		zap.String("mime", page.MimeType),
		zap.Int("scripts", len(page.Scripts)))
	return page, nil
}

// baseURL names the resolved file so relative src attributes resolve from
// its directory, including when the page url named a directory.
func (l *Loader) baseURL(rawURL, path string) string {
	if strings.HasPrefix(rawURL, SchemeLocal) {
		if rel, err := filepath.Rel(l.root, path); err == nil {
			return SchemeLocal + filepath.ToSlash(rel)
		}
	}
	return SchemeFile + filepath.ToSlash(path)
}

func (l *Loader) extractScripts(page *Page, base string, data []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	var loadErr error
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if typ, ok := s.Attr("type"); ok && !isScriptType(typ) {
			return true
		}

		src, ok := s.Attr("src")
		if !ok {
			page.Scripts = append(page.Scripts, Script{
				URL:  fmt.Sprintf("%s#script%d", page.URL, i),
				Code: s.Text(),
			})
			return true
		}

		ref := resolveRef(base, src)
		path, err := l.Resolve(ref)
		if err != nil {
			loadErr = err
			return false
		}
		code, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("read %s: %w", path, err)
			return false
		}
		out, err := transform(path, code)
		if err != nil {
			loadErr = err
			return false
		}
		page.Scripts = append(page.Scripts, Script{URL: ref, Code: out})
		return true
	})
	return loadErr
}

// resolveRef resolves a script src relative to the page url, keeping the scheme.
func resolveRef(pageURL, src string) string {
	if IsLocal(src) {
		return src
	}
	if strings.HasPrefix(pageURL, SchemeLocal) {
		base := strings.TrimLeft(strings.TrimPrefix(pageURL, SchemeLocal), "/")
		if strings.HasPrefix(src, "/") {
			return SchemeLocal + strings.TrimLeft(src, "/")
		}
		dir := base
		if !strings.HasSuffix(base, "/") {
			if i := strings.LastIndex(base, "/"); i >= 0 {
				dir = base[:i+1]
			} else {
				dir = ""
			}
		}
		return SchemeLocal + filepath.ToSlash(filepath.Clean(dir+src))
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}

// transform turns TypeScript into JavaScript the engine can run. Plain
// JavaScript passes through untouched.
func transform(path string, code []byte) (string, error) {
	var loader esbuild.Loader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		loader = esbuild.LoaderTS
	case ".tsx":
		loader = esbuild.LoaderTSX
	default:
		return string(code), nil
	}

	result := esbuild.Transform(string(code), esbuild.TransformOptions{
		Loader:     loader,
		Target:     esbuild.ES2017,
		Sourcefile: filepath.Base(path),
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("transform %s: %s", filepath.Base(path), strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

func detect(path string, data []byte) *mimetype.MIME {
	// Sniffing cannot tell TypeScript from text.
	if isScript(path) {
		if m := mimetype.Lookup("text/javascript"); m != nil {
			return m
		}
	}
	return mimetype.Detect(data)
}

func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".ts", ".tsx":
		return true
	}
	return false
}

func isScriptType(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "module", "text/typescript":
		return true
	}
	return false
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
