package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/labinochka/OIP/pkg/logger"
)

// DirSource reads a registry file plus one page per registered document from
// a directory. A page is <id>.txt (cleaned plaintext) or, failing that,
// <id>.html.
type DirSource struct {
	pagesDir     string
	registryFile string
	workers      int
	logger       *slog.Logger
}

// NewDirSource creates a directory-backed Source. workers bounds the number
// of pages read concurrently.
func NewDirSource(pagesDir, registryFile string, workers int) *DirSource {
	if workers <= 0 {
		workers = 1
	}
	return &DirSource{
		pagesDir:     pagesDir,
		registryFile: registryFile,
		workers:      workers,
		logger:       logger.WithComponent("corpus-dir"),
	}
}

// Load reads the registry and every page it names.
func (s *DirSource) Load(ctx context.Context) (*Corpus, error) {
	f, err := os.Open(s.registryFile)
	if err != nil {
		return nil, fmt.Errorf("opening registry %s: %w", s.registryFile, err)
	}
	defer f.Close()
	registry, err := ReadRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", s.registryFile, err)
	}

	ids := registry.IDs()
	docs := make([]Document, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := s.readPage(id)
			if err != nil {
				return err
			}
			docs[i] = NewDocument(id, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c, err := New(docs, registry)
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus loaded", "dir", s.pagesDir, "documents", c.Len())
	return c, nil
}

func (s *DirSource) readPage(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	txt := filepath.Join(s.pagesDir, id+".txt")
	data, err := os.ReadFile(txt)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading page %s: %w", txt, err)
	}
	page := filepath.Join(s.pagesDir, id+".html")
	f, err := os.Open(page)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no page for document %q in %s", id, s.pagesDir)
		}
		return "", fmt.Errorf("opening page %s: %w", page, err)
	}
	defer f.Close()
	text, err := ExtractText(f)
	if err != nil {
		return "", fmt.Errorf("parsing page %s: %w", page, err)
	}
	return text, nil
}

// ReadRegistry parses "<docId> <url>" lines. Blank lines are skipped.
func ReadRegistry(r io.Reader) (*Registry, error) {
	urls := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"<docId> <url>\", got %d fields", line, len(fields))
		}
		id, url := fields[0], fields[1]
		if err := ValidateID(id); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := urls[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate document id %q", line, id)
		}
		urls[id] = url
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewRegistry(urls), nil
}

// WriteRegistry writes one "<docId> <url>" line per entry in ascending id
// order. It fails rather than write a URL that would not read back.
func WriteRegistry(w io.Writer, r *Registry) error {
	bw := bufio.NewWriter(w)
	for _, id := range r.IDs() {
		url, _ := r.URL(id)
		if err := ValidateURL(url); err != nil {
			return fmt.Errorf("document %q: %w", id, err)
		}
		if _, err := fmt.Fprintf(bw, "%s %s\n", id, url); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var textBuilderPool = sync.Pool{
	New: func() any { return new(strings.Builder) },
}

// ExtractText returns the visible text of an HTML document. Script, style
// and noscript contents are skipped.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	sb := textBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	defer textBuilderPool.Put(sb)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), nil
}
