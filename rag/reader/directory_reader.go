package reader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the file types ingested by default.
var DefaultExtensions = []string{".txt", ".md", ".pdf"}

// DirectoryReader reads every eligible file under a directory.
type DirectoryReader struct {
	inputDir   string
	extensions []string
	recursive  bool
	readers    map[string]Reader
}

// DirectoryReaderOption configures a DirectoryReader.
type DirectoryReaderOption func(*DirectoryReader)

// WithExtensions sets the extension allow-list (case-insensitive, with leading dot).
func WithExtensions(extensions ...string) DirectoryReaderOption {
	return func(r *DirectoryReader) {
		r.extensions = extensions
	}
}

// WithRecursive enables descending into subdirectories.
func WithRecursive(recursive bool) DirectoryReaderOption {
	return func(r *DirectoryReader) {
		r.recursive = recursive
	}
}

// WithReader registers the reader used for ext.
func WithReader(ext string, reader Reader) DirectoryReaderOption {
	return func(r *DirectoryReader) {
		r.readers[strings.ToLower(ext)] = reader
	}
}

// NewDirectoryReader creates a new DirectoryReader.
func NewDirectoryReader(inputDir string, opts ...DirectoryReaderOption) *DirectoryReader {
	r := &DirectoryReader{
		inputDir:   inputDir,
		extensions: DefaultExtensions,
		readers:    make(map[string]Reader),
	}
	for _, reader := range []Reader{NewTextReader(), NewMarkdownReader(), NewPDFReader()} {
		for _, ext := range reader.Metadata().SupportedExtensions {
			r.readers[ext] = reader
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsReadmeLike reports whether name is a README file, whatever its extension.
func IsReadmeLike(name string) bool {
	return strings.HasPrefix(strings.ToLower(filepath.Base(name)), "readme")
}

// EligibleFiles lists the files to ingest, sorted by path.
func (r *DirectoryReader) EligibleFiles() ([]string, error) {
	allowed := make(map[string]bool, len(r.extensions))
	for _, e := range r.extensions {
		allowed[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(r.inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.inputDir && !r.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || IsReadmeLike(d.Name()) {
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", r.inputDir, err)
	}

	sort.Strings(files)
	return files, nil
}

// LoadFile reads one file with the reader registered for its extension.
func (r *DirectoryReader) LoadFile(path string) (*Document, error) {
	reader, ok := r.readers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, NewReaderError(path, "no reader for file type", nil)
	}
	return reader.LoadFromFile(path)
}

// LoadData reads every eligible file.
func (r *DirectoryReader) LoadData(ctx context.Context) ([]*Document, error) {
	files, err := r.EligibleFiles()
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		doc, err := r.LoadFile(file)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
