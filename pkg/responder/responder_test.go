package responder_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/retrieval"
	testutils "github.com/papercomputeco/cohort/pkg/utils/test"
	"github.com/papercomputeco/cohort/pkg/vector"
)

var _ = Describe("Classify", func() {
	It("selects applications when the query mentions them", func() {
		Expect(responder.Classify("Show me a strong APPLICATION answer")).To(Equal(responder.KindApplication))
		Expect(responder.Classify("application")).To(Equal(responder.KindApplication))
	})

	It("defaults to companies", func() {
		Expect(responder.Classify("fintech companies from W21")).To(Equal(responder.KindCompany))
		Expect(responder.Classify("")).To(Equal(responder.KindCompany))
	})

	It("parses explicit kinds", func() {
		k, err := responder.ParseKind(" Application ")
		Expect(err).NotTo(HaveOccurred())
		Expect(k).To(Equal(responder.KindApplication))

		_, err = responder.ParseKind("founder")
		Expect(err).To(MatchError(ContainSubstring(`unknown record kind "founder"`)))
	})

	It("maps kinds onto the type filter", func() {
		Expect(responder.KindApplication.Filter()).To(Equal(vector.Filter{Field: "type", Value: "application"}))
	})
})

var _ = Describe("Normalize", func() {
	It("flattens company metadata", func() {
		m := testutils.CompanyResult("Acme", 0.8734)
		m.Metadata["founders"] = []any{"Ada", "Grace"}
		m.Metadata["founded_date"] = "2021"

		records := responder.Normalize(responder.KindCompany, []vector.QueryResult{m})
		Expect(records).To(HaveLen(1))
		Expect(records[0]).To(Equal(responder.CompanyRecord{
			Name:        "Acme",
			Description: "Acme description",
			Batch:       "W24",
			FoundedDate: "2021",
			Industries:  "Fintech",
			Founders:    "Ada, Grace",
			Similarity:  "87.34%",
		}))
	})

	It("keeps at most three question and answer pairs", func() {
		m := testutils.ApplicationResult("Acme", 0.5)
		m.Metadata["question_2"] = "Why now?"
		m.Metadata["answer_2"] = "Regulation changed."
		m.Metadata["question_4"] = "ignored"

		records := responder.Normalize(responder.KindApplication, []vector.QueryResult{m})
		rec := records[0].(responder.ApplicationRecord)
		Expect(rec.CompanyName).To(Equal("Acme"))
		Expect(rec.Status).To(Equal("accepted"))
		Expect(rec.Similarity).To(Equal("50.00%"))
		Expect(rec.Questions).To(Equal([]responder.QuestionAnswer{
			{Question: "What is your company going to make?", Answer: "Software for Acme"},
			{Question: "Why now?", Answer: "Regulation changed."},
		}))
	})
})

var _ = Describe("BuildPrompt", func() {
	It("renders history, the query and the records", func() {
		history := []llm.Message{
			llm.NewUserMessage("hi"),
			llm.NewAssistantMessage("hello"),
		}
		records := responder.Normalize(responder.KindCompany, []vector.QueryResult{testutils.CompanyResult("Acme", 1)})

		prompt, err := responder.BuildPrompt("tell me about Acme", history, responder.KindCompany, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt).To(ContainSubstring("Human: hi\nAssistant: hello\n"))
		Expect(prompt).To(ContainSubstring("Question: tell me about Acme"))
		Expect(prompt).To(ContainSubstring(`"name": "Acme"`))
		Expect(prompt).To(ContainSubstring(`"similarity": "100.00%"`))
	})
})

var _ = Describe("Responder", func() {
	var (
		ctx          context.Context
		vectorDriver *testutils.MockVectorDriver
		completer    *testutils.ScriptedCompleter
		r            *responder.Responder
	)

	BeforeEach(func() {
		ctx = context.Background()
		vectorDriver = testutils.NewMockVectorDriver()
		completer = testutils.NewScriptedCompleter("Acme is a great example.")

		var err error
		r, err = responder.New(responder.Config{
			Searcher:  retrieval.NewSearcher(testutils.NewMockEmbedder(), vectorDriver, logger.Nop()),
			Completer: completer,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires its collaborators", func() {
		_, err := responder.New(responder.Config{Completer: completer})
		Expect(err).To(HaveOccurred())
		_, err = responder.New(responder.Config{Searcher: &failingSearcher{}})
		Expect(err).To(HaveOccurred())
	})

	It("answers without the completer when nothing matches", func() {
		result := r.Respond(ctx, "anything about rockets?", nil)
		Expect(result.Answer).To(Equal(responder.NoResultsAnswer))
		Expect(result.Matches).To(Equal(0))
		Expect(completer.Calls()).To(Equal(0))
		Expect(result.History).To(Equal([]llm.Message{
			llm.NewUserMessage("anything about rockets?"),
			llm.NewAssistantMessage(responder.NoResultsAnswer),
		}))
	})

	It("retrieves two records of the classified kind", func() {
		vectorDriver.Results = []vector.QueryResult{
			testutils.CompanyResult("Acme", 0.9),
			testutils.ApplicationResult("Acme", 0.9),
			testutils.ApplicationResult("Globex", 0.8),
			testutils.ApplicationResult("Initech", 0.7),
		}

		result := r.Respond(ctx, "how did Acme write its application?", nil)
		Expect(result.Kind).To(Equal(responder.KindApplication))
		Expect(result.Matches).To(Equal(2))
		Expect(vectorDriver.LastTopK).To(Equal(2))
		Expect(vectorDriver.LastFilter).To(Equal(vector.KindFilter("application")))
		Expect(result.Answer).To(Equal("Acme is a great example."))

		prompts := completer.Prompts()
		Expect(prompts).To(HaveLen(1))
		Expect(prompts[0]).To(ContainSubstring(`"company_name": "Globex"`))
		Expect(prompts[0]).NotTo(ContainSubstring("Initech"))
	})

	It("appends the pair to the prior history without mutating it", func() {
		vectorDriver.Results = []vector.QueryResult{testutils.CompanyResult("Acme", 0.9)}
		history := make([]llm.Message, 2, 8)
		history[0] = llm.NewUserMessage("q1")
		history[1] = llm.NewAssistantMessage("a1")

		result := r.Respond(ctx, "q2", history)
		Expect(result.History).To(HaveLen(4))
		Expect(result.History[2]).To(Equal(llm.NewUserMessage("q2")))
		Expect(result.History[3]).To(Equal(llm.NewAssistantMessage("Acme is a great example.")))
		Expect(history[:cap(history)][2]).To(BeZero())
		Expect(completer.Prompts()[0]).To(ContainSubstring("Human: q1\nAssistant: a1\n"))
	})

	It("apologizes when the completion fails", func() {
		vectorDriver.Results = []vector.QueryResult{testutils.CompanyResult("Acme", 0.9)}
		completer.Err = errors.New("upstream 500")

		var result responder.Result
		Expect(func() { result = r.Respond(ctx, "q", nil) }).NotTo(Panic())
		Expect(result.Answer).To(Equal(responder.ApologyAnswer))
		Expect(result.History[1]).To(Equal(llm.NewAssistantMessage(responder.ApologyAnswer)))
	})

	It("apologizes when retrieval fails", func() {
		vectorDriver.QueryErr = errors.New("vector store down")
		result := r.Respond(ctx, "q", nil)
		Expect(result.Answer).To(Equal(responder.ApologyAnswer))
		Expect(completer.Calls()).To(Equal(0))
	})

	It("serializes structured completions to JSON", func() {
		vectorDriver.Results = []vector.QueryResult{testutils.CompanyResult("Acme", 0.9)}
		completer.Reply = map[string]any{"advice": "ship"}

		result := r.Respond(ctx, "q", nil)
		Expect(result.Answer).To(MatchJSON(`{"advice":"ship"}`))
	})

	It("forwards fragments and keeps the returned text as the answer", func() {
		vectorDriver.Results = []vector.QueryResult{testutils.CompanyResult("Acme", 0.9)}
		completer.Fragments = []string{"Acme ", "is ", "great"}
		completer.Reply = "Acme is great."

		var (
			mu  sync.Mutex
			got []string
		)
		result := r.Respond(ctx, "q", nil, responder.WithFragmentHandler(func(f string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, f)
		}))
		Expect(got).To(Equal([]string{"Acme ", "is ", "great"}))
		Expect(result.Answer).To(Equal("Acme is great."))
	})
})

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int, vector.Filter) ([]vector.QueryResult, error) {
	return nil, errors.New("unreachable")
}
