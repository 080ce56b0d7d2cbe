package browser

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// harvestImageURLs parses page HTML and returns absolute image URLs,
// deduplicated in document order. Data URIs, trackers, and tiny
// decorative assets are skipped by extension heuristics.
func harvestImageURLs(pageHTML, baseURL string) []string {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var out []string
	seen := make(map[string]bool)

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key != "src" && attr.Key != "data-src" {
					continue
				}
				if u := resolveImageURL(base, attr.Val); u != "" && !seen[u] {
					seen[u] = true
					out = append(out, u)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return out
}

func resolveImageURL(base *url.URL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}

	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}

	path := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(path, ".svg"),
		strings.HasSuffix(path, ".gif"),
		strings.HasSuffix(path, ".ico"):
		return ""
	case strings.Contains(path, "icon"), strings.Contains(path, "logo"):
		return ""
	}
	return u.String()
}
