package responder

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/cohort/pkg/vector"
)

// maxQuestions bounds the question/answer pairs kept per application.
const maxQuestions = 3

// CompanyRecord is a company match flattened for the prompt.
type CompanyRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Batch       string `json:"batch"`
	FoundedDate string `json:"founded_date"`
	Industries  string `json:"industries"`
	Founders    string `json:"founders"`
	Similarity  string `json:"similarity"`
}

// QuestionAnswer is one application question with its answer.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ApplicationRecord is an accelerator application match flattened for the
// prompt.
type ApplicationRecord struct {
	CompanyName string           `json:"company_name"`
	Description string           `json:"description"`
	Batch       string           `json:"batch"`
	Status      string           `json:"status"`
	Questions   []QuestionAnswer `json:"questions"`
	Similarity  string           `json:"similarity"`
}

// Normalize turns matches into records of kind k, in match order.
func Normalize(k Kind, matches []vector.QueryResult) []any {
	records := make([]any, 0, len(matches))
	for _, m := range matches {
		if k == KindApplication {
			records = append(records, applicationRecord(m))
		} else {
			records = append(records, companyRecord(m))
		}
	}
	return records
}

func companyRecord(m vector.QueryResult) CompanyRecord {
	return CompanyRecord{
		Name:        field(m.Metadata, "name"),
		Description: field(m.Metadata, "description"),
		Batch:       field(m.Metadata, "batch"),
		FoundedDate: field(m.Metadata, "founded_date"),
		Industries:  listField(m.Metadata, "industries"),
		Founders:    listField(m.Metadata, "founders"),
		Similarity:  Similarity(m.Score),
	}
}

func applicationRecord(m vector.QueryResult) ApplicationRecord {
	rec := ApplicationRecord{
		CompanyName: field(m.Metadata, "company_name"),
		Description: field(m.Metadata, "description"),
		Batch:       field(m.Metadata, "batch"),
		Status:      field(m.Metadata, "status"),
		Questions:   []QuestionAnswer{},
		Similarity:  Similarity(m.Score),
	}
	for i := 1; i <= maxQuestions; i++ {
		q := field(m.Metadata, fmt.Sprintf("question_%d", i))
		if q == "" {
			continue
		}
		rec.Questions = append(rec.Questions, QuestionAnswer{
			Question: q,
			Answer:   field(m.Metadata, fmt.Sprintf("answer_%d", i)),
		})
	}
	return rec
}

// Similarity renders a [0, 1] score as a percentage with two decimals.
func Similarity(score float32) string {
	return fmt.Sprintf("%.2f%%", score*100)
}

func field(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func listField(meta map[string]any, key string) string {
	return strings.Join(vector.StringList(meta[key]), ", ")
}
