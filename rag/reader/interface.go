// Package reader extracts plain text from local documents.
package reader

import (
	"path/filepath"
	"strings"
)

// Document is the text of one source file.
type Document struct {
	Name     string
	Path     string
	Text     string
	Metadata map[string]string
}

// Reader loads a document from a file.
type Reader interface {
	LoadFromFile(filePath string) (*Document, error)
	Metadata() ReaderMetadata
}

// ReaderMetadata contains metadata about a reader.
type ReaderMetadata struct {
	Name                string
	SupportedExtensions []string
	Description         string
}

// ReaderError represents an error during document loading.
type ReaderError struct {
	Source  string // file path that caused the error
	Message string
	Err     error
}

func (e *ReaderError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Source + ": " + e.Message
}

func (e *ReaderError) Unwrap() error {
	return e.Err
}

// NewReaderError creates a new ReaderError.
func NewReaderError(source, message string, err error) *ReaderError {
	return &ReaderError{
		Source:  source,
		Message: message,
		Err:     err,
	}
}

func newDocument(filePath, text, fileType string) *Document {
	return &Document{
		Name: filepath.Base(filePath),
		Path: filePath,
		Text: strings.TrimSpace(text),
		Metadata: map[string]string{
			"file_name": filepath.Base(filePath),
			"file_type": fileType,
		},
	}
}
