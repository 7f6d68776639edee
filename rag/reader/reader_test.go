package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTextReader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "  Cosine similarity measures angle.\n")

	doc, err := NewTextReader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Cosine similarity measures angle.", doc.Text)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, "text", doc.Metadata["file_type"])

	bad := writeFile(t, dir, "bad.txt", string([]byte{0xff, 0xfe, 0xfd}))
	_, err = NewTextReader().LoadFromFile(bad)
	var readerErr *ReaderError
	assert.ErrorAs(t, err, &readerErr)

	_, err = NewTextReader().LoadFromFile(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarkdownReader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", `---
title: "Retrieval guide"
author: ana
---
# Retrieval

See [the docs](https://example.com) for details. ![diagram](img.png)
`)

	doc, err := NewMarkdownReader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Retrieval guide", doc.Metadata["title"])
	assert.Equal(t, "ana", doc.Metadata["author"])
	assert.Equal(t, "markdown", doc.Metadata["file_type"])
	assert.Contains(t, doc.Text, "See the docs for details.")
	assert.NotContains(t, doc.Text, "diagram")
	assert.NotContains(t, doc.Text, "---")

	keep := NewMarkdownReader().WithRemoveHyperlinks(false).WithRemoveImages(false)
	doc, err = keep.LoadFromFile(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "[the docs](https://example.com)")
	assert.Contains(t, doc.Text, "![diagram](img.png)")
}

func TestPDFReaderRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", "this is not a pdf")

	_, err := NewPDFReader().LoadFromFile(path)
	var readerErr *ReaderError
	require.ErrorAs(t, err, &readerErr)
	assert.Equal(t, path, readerErr.Source)
}

func TestDirectoryReaderEligibleFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "# B")
	writeFile(t, dir, "a.txt", "A")
	writeFile(t, dir, "README.md", "readme")
	writeFile(t, dir, "readme.txt", "readme")
	writeFile(t, dir, "data.csv", "x,y")
	writeFile(t, dir, ".hidden.txt", "h")
	writeFile(t, dir, "sub/c.txt", "C")

	files, err := NewDirectoryReader(dir).EligibleFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.md")}, files)

	files, err = NewDirectoryReader(dir, WithRecursive(true), WithExtensions(".TXT")).EligibleFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "sub", "c.txt")}, files)

	assert.True(t, IsReadmeLike("docs/Readme.rst"))
	assert.False(t, IsReadmeLike("guide.md"))
}

func TestDirectoryReaderLoadData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "Alpha text.")
	writeFile(t, dir, "b.md", "# Beta\n\nBeta text.")

	docs, err := NewDirectoryReader(dir).LoadData(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Alpha text.", docs[0].Text)
	assert.Equal(t, "b.md", docs[1].Name)

	r := NewDirectoryReader(dir, WithExtensions(".csv"))
	_, err = r.LoadFile(filepath.Join(dir, "x.csv"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDirectoryReader(dir).LoadData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
