package reader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader extracts the text layer of PDF files.
type PDFReader struct{}

// NewPDFReader creates a new PDFReader.
func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

// LoadFromFile extracts the text of every page, pages separated by a blank line.
// Pages that fail to decode are skipped; a PDF without any text is an error.
func (r *PDFReader) LoadFromFile(filePath string) (*Document, error) {
	f, pdfReader, err := pdf.Open(filePath)
	if err != nil {
		return nil, NewReaderError(filePath, "failed to open PDF", err)
	}
	defer f.Close()

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return nil, NewReaderError(filePath, "PDF has no pages", nil)
	}

	var textBuilder strings.Builder
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	if textBuilder.Len() == 0 {
		return nil, NewReaderError(filePath, "no text content found in PDF", nil)
	}

	doc := newDocument(filePath, textBuilder.String(), "pdf")
	doc.Metadata["total_pages"] = fmt.Sprintf("%d", numPages)
	return doc, nil
}

// Metadata returns reader metadata.
func (r *PDFReader) Metadata() ReaderMetadata {
	return ReaderMetadata{
		Name:                "PDFReader",
		SupportedExtensions: []string{".pdf"},
		Description:         "Reads PDF files and extracts text content",
	}
}

var _ Reader = (*PDFReader)(nil)
