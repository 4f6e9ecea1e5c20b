// Package domain implements the core logic of the visual regression harness:
// fixture discovery, pixel comparison, and case orchestration.
package domain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"refract.dev/pkg/refract/internal/adapter"
	m "refract.dev/pkg/refract/internal/model"
)

// RecursiveSuffix marks a path argument for recursive scanning, Go-style:
// "tests/..." walks the whole subtree while "tests" scans one level.
const RecursiveSuffix = "/..."

// documentExtensions are the file extensions considered fixture candidates.
var documentExtensions = map[string]bool{
	".html":  true,
	".htm":   true,
	".xht":   true,
	".xhtml": true,
}

// Loader discovers test-document/reference-document pairs from directory
// trees. Discovery is finite, restartable, and deterministic: re-invoking it
// over an unchanged tree yields the identical sequence.
type Loader interface {
	Discover(ctx context.Context, paths []m.Path, exclude ...string) ([]m.TestCase, []m.Skip, error)
}

type loader struct {
	fs adapter.FixtureFSAdapter
}

// NewLoader constructs a Loader backed by the provided filesystem adapter.
func NewLoader(fs adapter.FixtureFSAdapter) Loader {
	return &loader{fs: fs}
}

// candidate is a document found on disk before reference resolution.
type candidate struct {
	path     m.Path
	id       string
	checksum string
	meta     documentMeta
}

// Discover walks the given paths and returns the test cases found, in
// deterministic discovery order, plus the documents skipped for lack of a
// reference link.
func (l *loader) Discover(ctx context.Context, paths []m.Path, exclude ...string) ([]m.TestCase, []m.Skip, error) {
	if len(paths) == 0 {
		paths = []m.Path{"."}
	}

	filters, err := compileExcludes(exclude)
	if err != nil {
		return nil, nil, err
	}

	var candidates []candidate

	for _, root := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		found, err := l.scanRoot(root, filters)
		if err != nil {
			return nil, nil, err
		}

		candidates = append(candidates, found...)
	}

	return resolveReferences(candidates), collectSkips(candidates), nil
}

// scanRoot walks one root path and parses every candidate document's head.
func (l *loader) scanRoot(root m.Path, filters []*regexp.Regexp) ([]candidate, error) {
	rootStr, recursive := splitRecursive(root)

	info, err := l.fs.FileInfo(m.Path(rootStr))
	if err != nil {
		return nil, fmt.Errorf("root path %s: %w", rootStr, err)
	}

	if !info.IsDir() {
		return l.scanFile(m.Path(rootStr), m.Path(filepath.Dir(rootStr)))
	}

	var candidates []candidate

	err = l.fs.Walk(m.Path(rootStr), recursive, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !documentExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		if excluded(path, filters) {
			slog.Debug("Excluded fixture", "path", path)
			return nil
		}

		found, err := l.scanFile(m.Path(path), m.Path(rootStr))
		if err != nil {
			return err
		}

		candidates = append(candidates, found...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	// filepath.Walk is already lexical; sort anyway so discovery order never
	// depends on adapter implementation details.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].id < candidates[j].id
	})

	return candidates, nil
}

func (l *loader) scanFile(path, root m.Path) ([]candidate, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	meta := parseDocumentMeta(data)

	checksum, err := l.fs.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash fixture %s: %w", path, err)
	}

	rel, err := l.fs.RelPath(root, path)
	if err != nil {
		rel = path
	}

	return []candidate{{
		path:     path,
		id:       filepath.ToSlash(string(rel)),
		checksum: checksum,
		meta:     meta,
	}}, nil
}

// resolveReferences turns candidates with a reference link into test cases.
// The link target is resolved relative to the document's directory.
func resolveReferences(candidates []candidate) []m.TestCase {
	var cases []m.TestCase

	for _, c := range candidates {
		if c.meta.reference == "" {
			continue
		}

		refPath := c.meta.reference
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(filepath.Dir(string(c.path)), refPath)
		}

		cases = append(cases, m.TestCase{
			ID:            c.id,
			TestPath:      c.path,
			ReferencePath: m.Path(refPath),
			Relation:      c.meta.relation,
			Title:         c.meta.title,
			Assertion:     c.meta.assertion,
			Flags:         c.meta.flags,
			Checksum:      c.checksum,
		})
	}

	return cases
}

// collectSkips records documents without a reference link, except documents
// that only exist to serve as another case's reference.
func collectSkips(candidates []candidate) []m.Skip {
	referenced := make(map[string]bool)

	for _, c := range candidates {
		if c.meta.reference == "" {
			continue
		}

		refPath := c.meta.reference
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(filepath.Dir(string(c.path)), refPath)
		}

		referenced[filepath.Clean(refPath)] = true
	}

	var skips []m.Skip

	for _, c := range candidates {
		if c.meta.reference != "" || referenced[filepath.Clean(string(c.path))] {
			continue
		}

		slog.Debug("Skipping fixture without reference", "path", c.path)

		skips = append(skips, m.Skip{Path: c.path, Reason: m.NoReference})
	}

	return skips
}

// documentMeta is the metadata declared in a fixture document's head.
type documentMeta struct {
	title     string
	assertion string
	flags     []string
	reference string
	relation  m.Relation
}

// parseDocumentMeta extracts title, assert/flags meta tags, and the first
// match/mismatch link from a document. The tolerant html5 parser never fails;
// malformed documents simply yield empty metadata.
func parseDocumentMeta(data []byte) documentMeta {
	var meta documentMeta

	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return meta
	}

	var visit func(*html.Node)

	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Link:
				rel := attrValue(n, "rel")
				if meta.reference == "" && (rel == string(m.RelationMatch) || rel == string(m.RelationMismatch)) {
					if href := attrValue(n, "href"); href != "" {
						meta.reference = href
						meta.relation = m.Relation(rel)
					}
				}
			case atom.Meta:
				switch attrValue(n, "name") {
				case "assert":
					meta.assertion = strings.TrimSpace(attrValue(n, "content"))
				case "flags":
					meta.flags = strings.Fields(attrValue(n, "content"))
				}
			}
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}

	visit(root)

	return meta
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val
		}
	}

	return ""
}

func splitRecursive(path m.Path) (string, bool) {
	s := string(path)

	if strings.HasSuffix(s, RecursiveSuffix) {
		trimmed := strings.TrimSuffix(s, RecursiveSuffix)
		if trimmed == "" {
			trimmed = "."
		}

		return trimmed, true
	}

	if s == "..." {
		return ".", true
	}

	return s, false
}

func compileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	filters := make([]*regexp.Regexp, 0, len(patterns))

	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}

		filters = append(filters, re)
	}

	return filters, nil
}

func excluded(path string, filters []*regexp.Regexp) bool {
	for _, re := range filters {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}
