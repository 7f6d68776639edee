package reader

import (
	"os"
	"unicode/utf8"
)

// TextReader reads UTF-8 plain text files.
type TextReader struct{}

// NewTextReader creates a new TextReader.
func NewTextReader() *TextReader {
	return &TextReader{}
}

// LoadFromFile reads filePath as text.
func (r *TextReader) LoadFromFile(filePath string) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, NewReaderError(filePath, "failed to read file", err)
	}
	if !utf8.Valid(content) {
		return nil, NewReaderError(filePath, "file is not valid UTF-8", nil)
	}
	return newDocument(filePath, string(content), "text"), nil
}

// Metadata returns reader metadata.
func (r *TextReader) Metadata() ReaderMetadata {
	return ReaderMetadata{
		Name:                "TextReader",
		SupportedExtensions: []string{".txt"},
		Description:         "Reads plain text files",
	}
}

var _ Reader = (*TextReader)(nil)
