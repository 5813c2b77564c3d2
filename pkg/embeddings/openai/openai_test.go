package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/embeddings/openai"
	"github.com/papercomputeco/cohort/pkg/vector"
)

var _ = Describe("Embedder", func() {
	It("sends the key and requested dimensions", func() {
		var (
			auth string
			body map[string]any
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/embeddings"))
			auth = r.Header.Get("Authorization")
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0.5]}]}`))
		}))
		DeferCleanup(server.Close)

		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    server.URL,
			APIKey:     "sk-test",
			Dimensions: 2,
		})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "climate startups")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{1, 0.5}))
		Expect(auth).To(Equal("Bearer sk-test"))
		Expect(body).To(HaveKeyWithValue("dimensions", BeNumerically("==", 2)))
		Expect(body).To(HaveKeyWithValue("model", openai.DefaultEmbeddingModel))
	})

	It("wraps upstream failures in ErrEmbedding", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
		}))
		DeferCleanup(server.Close)

		e, _ := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL, APIKey: "x"})
		_, err := e.Embed(context.Background(), "x")
		Expect(err).To(MatchError(vector.ErrEmbedding))
	})
})
