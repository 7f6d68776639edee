package reader

import (
	"os"
	"regexp"
	"strings"
)

var (
	linkRegex  = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	imageRegex = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
)

// MarkdownReader reads Markdown files. Front matter is moved into metadata.
type MarkdownReader struct {
	// RemoveHyperlinks replaces [text](url) with text.
	RemoveHyperlinks bool
	// RemoveImages drops ![alt](url) references.
	RemoveImages bool
}

// NewMarkdownReader creates a MarkdownReader that removes images and keeps link text only.
func NewMarkdownReader() *MarkdownReader {
	return &MarkdownReader{
		RemoveHyperlinks: true,
		RemoveImages:     true,
	}
}

// WithRemoveHyperlinks enables hyperlink removal.
func (r *MarkdownReader) WithRemoveHyperlinks(remove bool) *MarkdownReader {
	r.RemoveHyperlinks = remove
	return r
}

// WithRemoveImages enables image reference removal.
func (r *MarkdownReader) WithRemoveImages(remove bool) *MarkdownReader {
	r.RemoveImages = remove
	return r
}

// LoadFromFile loads a single Markdown file.
func (r *MarkdownReader) LoadFromFile(filePath string) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, NewReaderError(filePath, "failed to read file", err)
	}

	metadata, text := extractFrontmatter(string(content))
	doc := newDocument(filePath, r.preprocess(text), "markdown")
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	return doc, nil
}

// Metadata returns reader metadata.
func (r *MarkdownReader) Metadata() ReaderMetadata {
	return ReaderMetadata{
		Name:                "MarkdownReader",
		SupportedExtensions: []string{".md", ".markdown"},
		Description:         "Reads Markdown files with optional preprocessing",
	}
}

func (r *MarkdownReader) preprocess(text string) string {
	// Images first, the link pattern would otherwise keep their alt text.
	if r.RemoveImages {
		text = imageRegex.ReplaceAllString(text, "")
	}
	if r.RemoveHyperlinks {
		text = linkRegex.ReplaceAllString(text, "$1")
	}
	return text
}

// extractFrontmatter parses simple key: value pairs between leading --- lines.
func extractFrontmatter(text string) (map[string]string, string) {
	metadata := make(map[string]string)
	if !strings.HasPrefix(text, "---") {
		return metadata, text
	}

	lines := strings.Split(text, "\n")
	endIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIdx = i
			break
		}
	}
	if endIdx == -1 {
		return metadata, text
	}

	for _, line := range lines[1:endIdx] {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		metadata[key] = strings.Trim(strings.TrimSpace(parts[1]), `"'`)
	}
	return metadata, strings.Join(lines[endIdx+1:], "\n")
}

var _ Reader = (*MarkdownReader)(nil)
