// Package opml provides OPML import and export functionality for feedcore.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robertmeta/feedcore/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements (feeds).
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or a folder in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and flattens it into subscriptions. Nested
// outlines become folder paths. A malformed document is an import failure.
func Parse(r io.Reader) ([]model.Subscription, error) {
	var doc OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, model.NewImportFailure("failed to parse OPML", err)
	}

	return extractSubscriptions(doc.Body.Outlines, nil), nil
}

// extractSubscriptions recursively extracts feeds from outlines.
func extractSubscriptions(outlines []Outline, path []string) []model.Subscription {
	subs := []model.Subscription{}

	for _, outline := range outlines {
		name := outline.Text
		if name == "" {
			name = outline.Title
		}

		// If this outline has an xmlUrl, it's a feed
		if outline.XMLUrl != "" {
			sub := model.Subscription{
				URL:        outline.XMLUrl,
				Title:      outline.Title,
				FolderPath: append([]string{}, path...),
			}
			if sub.Title == "" {
				sub.Title = outline.Text
			}
			// A flat document may carry the folder in the category attribute.
			if len(path) == 0 && outline.Category != "" {
				sub.FolderPath = categoryPath(outline.Category)
			}
			subs = append(subs, sub)
		}

		if len(outline.Outlines) > 0 {
			childPath := path
			if outline.XMLUrl == "" && name != "" {
				childPath = append(append([]string{}, path...), name)
			}
			subs = append(subs, extractSubscriptions(outline.Outlines, childPath)...)
		}
	}

	return subs
}

// categoryPath turns "/Tech/Go" or "Tech/Go" into a folder path. Only the
// first of several comma separated categories is used.
func categoryPath(category string) []string {
	first, _, _ := strings.Cut(category, ",")
	var path []string
	for _, part := range strings.Split(first, "/") {
		if part = strings.TrimSpace(part); part != "" {
			path = append(path, part)
		}
	}
	return path
}

// Generate writes an OPML document for a source tree.
func Generate(w io.Writer, title string, tree []*model.TreeNode) error {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: toOutlines(tree),
		},
	}

	// Write XML declaration
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}

	return nil
}

func toOutlines(nodes []*model.TreeNode) []Outline {
	outlines := []Outline{}
	for _, n := range nodes {
		switch n.Kind {
		case model.NodeFolder:
			outlines = append(outlines, Outline{
				Text:     n.Title,
				Title:    n.Title,
				Outlines: toOutlines(n.Children),
			})
		case model.NodeFeed:
			outlines = append(outlines, Outline{
				Type:   "rss",
				Text:   n.Title,
				Title:  n.Title,
				XMLUrl: n.URL,
			})
		}
	}
	return outlines
}
