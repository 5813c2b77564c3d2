package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/responder"
	testutils "github.com/papercomputeco/cohort/pkg/utils/test"
	"github.com/papercomputeco/cohort/pkg/vector"
)

var _ = Describe("Chat handler", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(nil, nil)
		f.vectors.Results = []vector.QueryResult{testutils.CompanyResult("Acme", 0.93)}
		f.completer.Fragments = []string{"Acme builds ", "payments software."}
	})

	Describe("validation", func() {
		It("rejects a POST without a message", func() {
			resp := f.postChat("", "t1")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var body llm.ErrorResponse
			decodeJSON(resp.Body, &body)
			Expect(body.Error).To(Equal("Message and threadId are required"))
			Expect(f.completer.Calls()).To(Equal(0))
		})

		It("rejects a GET without a thread id", func() {
			req, _ := http.NewRequest(http.MethodGet, "/chat?message=hi", nil)
			resp := f.do(req)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(resp.Header.Get(fiber.HeaderContentType)).NotTo(Equal("text/event-stream"))
		})

		It("rejects a malformed body", func() {
			req, _ := http.NewRequest(http.MethodPost, "/chat", strings.NewReader("{"))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			resp := f.do(req)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	It("streams the cumulative answer and a single [DONE]", func() {
		resp := f.postChat("Tell me about Acme", "t1")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(resp.Header.Get(fiber.HeaderContentType)).To(Equal("text/event-stream"))
		Expect(resp.Header.Get(fiber.HeaderCacheControl)).To(Equal("no-cache"))

		frames := readFrames(resp.Body)
		Expect(frames).To(Equal([]string{
			"Acme builds ",
			"Acme builds payments software.",
			"[DONE]",
		}))
	})

	It("sends the final answer when nothing was streamed", func() {
		f.vectors.Results = nil

		resp := f.postChat("Tell me about Acme", "t1")
		Expect(readFrames(resp.Body)).To(Equal([]string{responder.NoResultsAnswer, "[DONE]"}))
		Expect(f.completer.Calls()).To(Equal(0))
	})

	It("accepts GET with query parameters", func() {
		q := url.Values{"message": {"Tell me about Acme"}, "threadId": {"t-get"}}
		req, _ := http.NewRequest(http.MethodGet, "/chat?"+q.Encode(), nil)

		frames := readFrames(f.do(req).Body)
		Expect(frames).To(HaveLen(3))
		Expect(frames[2]).To(Equal("[DONE]"))
		Expect(f.registry.Has("t-get")).To(BeTrue())
	})

	It("keeps GET values intact after later requests reuse the buffers", func() {
		q := url.Values{"message": {"my secret pitch"}, "threadId": {"thread-one"}}
		req, _ := http.NewRequest(http.MethodGet, "/chat?"+q.Encode(), nil)
		Expect(readFrames(f.do(req).Body)).To(ContainElement("[DONE]"))

		for range 3 {
			req, _ = http.NewRequest(http.MethodGet, "/history?threadId=zz&b=yy", nil)
			_, _ = io.ReadAll(f.do(req).Body)
		}

		Expect(f.registry.Has("thread-one")).To(BeTrue())
		history, err := f.server.config.Sessions.History(context.Background(), "thread-one")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(2))
		Expect(history[0]).To(Equal(llm.NewUserMessage("my secret pitch")))
	})

	It("carries history across requests on the same thread", func() {
		first := readFrames(f.postChat("Tell me about Acme", "t1").Body)
		Expect(first).To(HaveLen(3))

		second := readFrames(f.postChat("Which batch was it in?", "t1").Body)
		Expect(second[len(second)-1]).To(Equal("[DONE]"))
		Expect(strings.Count(strings.Join(second, "\n"), "[DONE]")).To(Equal(1))

		prompts := f.completer.Prompts()
		Expect(prompts).To(HaveLen(2))
		Expect(prompts[0]).NotTo(ContainSubstring("Human: Tell me about Acme"))
		Expect(strings.Count(prompts[1], "Human: Tell me about Acme")).To(Equal(1))
		Expect(strings.Count(prompts[1], "Assistant: Acme builds payments software.")).To(Equal(1))
		Expect(prompts[1]).NotTo(ContainSubstring("Human: Which batch was it in?"))

		history, err := f.server.config.Sessions.History(context.Background(), "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(4))
	})

	It("keeps threads apart", func() {
		readFrames(f.postChat("Tell me about Acme", "t1").Body)
		readFrames(f.postChat("Tell me about Acme", "t2").Body)

		prompts := f.completer.Prompts()
		Expect(prompts[1]).NotTo(ContainSubstring("Human:"))
	})

	It("ends with an error frame when the turn exceeds its duration", func() {
		f = newFixture(nil, func(c *Config) { c.MaxTurnDuration = 50 * time.Millisecond })
		f.vectors.Results = []vector.QueryResult{testutils.CompanyResult("Acme", 0.93)}
		f.completer.Fragments = []string{"Acme"}
		f.completer.Gate = make(chan struct{})

		frames := readFrames(f.postChat("Tell me about Acme", "t1").Body)
		Expect(frames).To(Equal([]string{"Acme", "Error: " + errTurnTimeout}))

		history, err := f.server.config.Sessions.History(context.Background(), "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(BeEmpty())
	})

	It("answers 500 when the thread cannot be loaded", func() {
		f = newFixture(failingStore{}, nil)

		resp := f.postChat("Tell me about Acme", "t1")
		Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))

		var body llm.ErrorResponse
		decodeJSON(resp.Body, &body)
		Expect(body.Error).To(ContainSubstring("store down"))
	})
})
