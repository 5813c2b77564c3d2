package anthropic_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/llm/provider"
	"github.com/papercomputeco/cohort/pkg/llm/provider/anthropic"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			Expect(r.Header.Get("x-api-key")).To(Equal("key"))
			Expect(r.Header.Get("anthropic-version")).NotTo(BeEmpty())
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *anthropic.Client {
		return anthropic.New(anthropic.Config{BaseURL: server.URL, APIKey: "key"})
	}

	It("joins text blocks", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"model":"claude","content":[{"type":"text","text":"Apply "},{"type":"text","text":"early."}],"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":2}}`)
		}

		c, err := newClient().Complete(context.Background(), "advice?", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Content).To(Equal("Apply early."))
		Expect(c.StopReason).To(Equal("end_turn"))
		Expect(c.Usage.TotalTokens).To(Equal(6))
	})

	It("returns tool input as structured content", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"content":[{"type":"tool_use","name":"record","input":{"batch":"W24"}}]}`)
		}

		c, err := newClient().Complete(context.Background(), "advice?", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Content).To(Equal(map[string]any{"batch": "W24"}))
	})

	It("streams text deltas", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"model\":\"claude-x\"}}\n\n")
			fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Be \"}}\n\n")
			fmt.Fprint(w, "event: ping\ndata: {\"type\":\"ping\"}\n\n")
			fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"concise\"}}\n\n")
			fmt.Fprint(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"}}\n\n")
			fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
		}

		var fragments []string
		c, err := newClient().Complete(context.Background(), "advice?", func(f string) {
			fragments = append(fragments, f)
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(fragments).To(Equal([]string{"Be ", "concise"}))
		Expect(c.Content).To(Equal("Be concise"))
		Expect(c.Model).To(Equal("claude-x"))
		Expect(c.StopReason).To(Equal("end_turn"))
	})

	It("fails on stream error events", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
		}

		_, err := newClient().Complete(context.Background(), "advice?", func(string) {})
		Expect(errors.Is(err, provider.ErrUpstream)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("Overloaded")))
	})
})
