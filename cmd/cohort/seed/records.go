package seedcmder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/cohort/pkg/vector"
)

const (
	kindCompany     = "company"
	kindApplication = "application"
)

// record is one line of a seed file.
type record struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// readRecords parses JSON lines into documents ready for embedding. Blank
// lines are skipped; an invalid line fails the whole file.
func readRecords(r io.Reader) ([]vector.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var docs []vector.Document
	seen := make(map[string]int)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := rec.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, ok := seen[rec.ID]; ok {
			return nil, fmt.Errorf("line %d: duplicate id %q (first seen on line %d)", line, rec.ID, prev)
		}
		seen[rec.ID] = line

		meta := make(map[string]any, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		meta[vector.MetadataKind] = rec.Type

		docs = append(docs, vector.Document{
			ID:       rec.ID,
			Content:  rec.Text,
			Metadata: meta,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return docs, nil
}

func (r record) validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("missing id")
	case r.Type != kindCompany && r.Type != kindApplication:
		return fmt.Errorf("type must be %q or %q, got %q", kindCompany, kindApplication, r.Type)
	case strings.TrimSpace(r.Text) == "":
		return fmt.Errorf("missing text")
	}
	return nil
}
