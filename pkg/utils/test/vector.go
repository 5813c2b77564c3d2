package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/cohort/pkg/vector"
)

// MockVectorDriver is a test vector driver. Query returns Results with the
// filter applied and records what it was asked for.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document

	Results  []vector.QueryResult
	QueryErr error

	LastTopK   int
	LastFilter vector.Filter
	Queries    int
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make([]vector.Document, 0),
		Results:   make([]vector.QueryResult, 0),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries++
	m.LastTopK = topK
	m.LastFilter = filter
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	out := make([]vector.QueryResult, 0, topK)
	for _, r := range m.Results {
		if !filter.Match(r.Metadata) {
			continue
		}
		out = append(out, r)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (m *MockVectorDriver) Get(_ context.Context, _ []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.documents, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, _ []string) error {
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Documents returns everything passed to Add.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents...)
}

// CompanyResult builds a company hit for tests.
func CompanyResult(name string, score float32) vector.QueryResult {
	return vector.QueryResult{
		Document: vector.Document{
			ID:      name,
			Content: name,
			Metadata: map[string]any{
				vector.MetadataKind: "company",
				"name":              name,
				"description":       name + " description",
				"batch":             "W24",
				"industries":        []string{"Fintech"},
			},
		},
		Score: score,
	}
}

// ApplicationResult builds an application hit for tests.
func ApplicationResult(companyName string, score float32) vector.QueryResult {
	return vector.QueryResult{
		Document: vector.Document{
			ID:      companyName + "-application",
			Content: companyName,
			Metadata: map[string]any{
				vector.MetadataKind: "application",
				"company_name":      companyName,
				"status":            "accepted",
				"question_1":        "What is your company going to make?",
				"answer_1":          "Software for " + companyName,
			},
		},
		Score: score,
	}
}
