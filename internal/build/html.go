package build

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/devpack/internal/errors"
)

// page is a parsed index.html and the local entries it references.
type page struct {
	path    string
	source  []byte
	entries []string // absolute paths, in document order, unique
}

// readPage parses root/index.html. Module scripts and stylesheets that
// exist under root become entries; references into publicDir and external
// URLs are left alone.
func readPage(root, publicDir, base string) (*page, error) {
	path := filepath.Join(root, "index.html")
	source, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E301").
				WithDetail(fmt.Sprintf("No index.html found in %s", root)).
				WithSuggestion("Create index.html in the project root, or run 'devpack create' to scaffold a project")
		}
		return nil, errors.New("E301").Wrap(err)
	}

	doc, err := html.Parse(bytes.NewReader(source))
	if err != nil {
		return nil, errors.New("E301").
			WithDetail("Failed to parse index.html").
			WithLocation(path, 0, 0).
			Wrap(err)
	}

	p := &page{path: path, source: source}
	seen := map[string]bool{}
	var walkErr error
	walk(doc, func(n *html.Node) {
		if walkErr != nil {
			return
		}
		attr, ok := entryAttr(n)
		if !ok {
			return
		}
		ref := getAttr(n, attr)
		abs, local := resolveRef(root, publicDir, base, ref)
		if !local {
			return
		}
		if abs == "" {
			walkErr = errors.New("E300").
				WithDetail(fmt.Sprintf("index.html references %s, which does not exist", ref)).
				WithLocation(path, 0, 0)
			return
		}
		if !seen[abs] {
			seen[abs] = true
			p.entries = append(p.entries, abs)
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return p, nil
}

// output describes the bundle outputs of one entry, as paths relative to
// the output directory.
type output struct {
	file string
	css  []string
}

// render rewrites entry references to their outputs and links the CSS
// produced by script entries.
func (p *page) render(root, publicDir, base string, outputs map[string]output) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(p.source))
	if err != nil {
		return nil, errors.New("E301").Wrap(err)
	}

	var head *html.Node
	var cssLinks []string
	linked := map[string]bool{}

	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Head && head == nil {
			head = n
		}
		attr, ok := entryAttr(n)
		if !ok {
			return
		}
		abs, local := resolveRef(root, publicDir, base, getAttr(n, attr))
		if !local || abs == "" {
			return
		}
		out, ok := outputs[abs]
		if !ok {
			return
		}
		setAttr(n, attr, base+out.file)
		linked[out.file] = true
		cssLinks = append(cssLinks, out.css...)
	})

	if head != nil {
		for _, css := range cssLinks {
			if linked[css] {
				continue
			}
			linked[css] = true
			head.AppendChild(&html.Node{
				Type:     html.ElementNode,
				Data:     "link",
				DataAtom: atom.Link,
				Attr: []html.Attribute{
					{Key: "rel", Val: "stylesheet"},
					{Key: "href", Val: base + css},
				},
			})
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, errors.New("E300").Wrap(err)
	}
	return buf.Bytes(), nil
}

// entryAttr returns the attribute holding the entry reference of n.
func entryAttr(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	switch n.DataAtom {
	case atom.Script:
		if getAttr(n, "type") == "module" && getAttr(n, "src") != "" {
			return "src", true
		}
	case atom.Link:
		if strings.EqualFold(getAttr(n, "rel"), "stylesheet") && getAttr(n, "href") != "" {
			return "href", true
		}
	}
	return "", false
}

// resolveRef maps an HTML reference to a file under root. local is false
// for external URLs and for files served from publicDir; abs is empty when
// a local reference points at nothing.
func resolveRef(root, publicDir, base, ref string) (abs string, local bool) {
	if ref == "" || strings.HasPrefix(ref, "//") || strings.Contains(ref, "://") ||
		strings.HasPrefix(ref, "data:") {
		return "", false
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}

	rel := ref
	if strings.HasPrefix(rel, "/") {
		if base != "/" && strings.HasPrefix(rel, base) {
			rel = strings.TrimPrefix(rel, base)
		} else {
			rel = strings.TrimPrefix(rel, "/")
		}
	}
	rel = filepath.FromSlash(rel)

	candidate := filepath.Join(root, rel)
	if isFile(candidate) {
		return candidate, true
	}
	if publicDir != "" && isFile(filepath.Join(publicDir, rel)) {
		return "", false
	}
	return "", true
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// InjectBeforeBody inserts snippet before </body>, falling back to
// </html> or the end of the document.
func InjectBeforeBody(doc []byte, snippet string) []byte {
	s := string(doc)
	if idx := strings.LastIndex(s, "</body>"); idx != -1 {
		return []byte(s[:idx] + snippet + s[idx:])
	}
	if idx := strings.LastIndex(s, "</html>"); idx != -1 {
		return []byte(s[:idx] + snippet + s[idx:])
	}
	return []byte(s + snippet)
}
