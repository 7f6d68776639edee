// Package dataset builds evaluation contexts from an ingested corpus and
// replays goldens through the RAG service.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/ragerr"
)

const maxLineSize = 16 << 20

// ReadSamples reads one sample per line. Blank lines are skipped.
func ReadSamples(path string) ([]*evaluation.Sample, error) {
	const op = "dataset.read_samples"

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerr.NotFound(op, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var samples []*evaluation.Sample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var s evaluation.Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, ragerr.ParseFailure(op, fmt.Errorf("%s line %d: %w", path, line, err))
		}
		samples = append(samples, &s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return samples, nil
}

// MarshalSamples encodes samples as JSONL.
func MarshalSamples(samples []*evaluation.Sample) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, s := range samples {
		if err := enc.Encode(s); err != nil {
			return nil, fmt.Errorf("failed to encode sample %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// WriteSamples writes samples as JSONL, replacing path atomically.
func WriteSamples(path string, samples []*evaluation.Sample) error {
	data, err := MarshalSamples(samples)
	if err != nil {
		return err
	}
	return evaluation.WriteFileAtomic(path, data)
}

// WriteContexts writes contexts as a JSON array of arrays of strings.
func WriteContexts(path string, contexts [][]string) error {
	data, err := json.MarshalIndent(contexts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode contexts: %w", err)
	}
	return evaluation.WriteFileAtomic(path, append(data, '\n'))
}

// ReadContexts reads a file written by WriteContexts.
func ReadContexts(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerr.NotFound("dataset.read_contexts", path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var contexts [][]string
	if err := json.Unmarshal(data, &contexts); err != nil {
		return nil, ragerr.ParseFailure("dataset.read_contexts", err)
	}
	return contexts, nil
}
