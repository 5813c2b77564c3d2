package chroma_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/vector"
	"github.com/papercomputeco/cohort/pkg/vector/chroma"
)

// fakeChroma serves the handful of v2 endpoints the driver calls.
type fakeChroma struct {
	mu       sync.Mutex
	created  bool
	bodies   map[string]map[string]any
	queryOut string
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer GinkgoRecover()
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	op := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.bodies[op] = body

	switch {
	case r.Method == http.MethodGet && !f.created:
		http.Error(w, "not found", http.StatusNotFound)
	case r.Method == http.MethodGet, op == "collections":
		f.created = true
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "cohort_records"})
	case op == "query":
		_, _ = w.Write([]byte(f.queryOut))
	case op == "get":
		_, _ = w.Write([]byte(`{"ids":["a"],"metadatas":[{"type":"company"}],"documents":["Acme"],"embeddings":[[0.5,0.5]]}`))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

var _ = Describe("Driver", func() {
	var (
		fake   *fakeChroma
		server *httptest.Server
		driver *chroma.Driver
	)

	BeforeEach(func() {
		fake = &fakeChroma{bodies: map[string]map[string]any{}}
		server = httptest.NewServer(fake)

		var err error
		driver, err = chroma.NewDriver(chroma.Config{URL: server.URL}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("creates the collection when it does not exist", func() {
		Expect(fake.created).To(BeTrue())
		Expect(fake.bodies["collections"]).To(HaveKeyWithValue("name", "cohort_records"))
	})

	It("requires a URL", func() {
		_, err := chroma.NewDriver(chroma.Config{}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("chroma URL is required")))
	})

	It("gives up after the configured attempts", func() {
		var attempts atomic.Int32
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer down.Close()

		_, err := chroma.NewDriver(chroma.Config{
			URL:           down.URL,
			MaxRetries:    3,
			RetryDelay:    5 * time.Millisecond,
			MaxRetryDelay: 10 * time.Millisecond,
		}, logger.Nop())
		Expect(err).To(MatchError(vector.ErrConnection))
		Expect(err).To(MatchError(ContainSubstring("after 3 attempts")))
		Expect(attempts.Load()).To(Equal(int32(3)))
	})

	It("upserts documents with flattened list metadata", func() {
		err := driver.Add(context.Background(), []vector.Document{{
			ID:        "acme",
			Content:   "Acme builds rockets",
			Metadata:  map[string]any{"type": "company", "founders": []string{"Ada", "Grace"}},
			Embedding: []float32{0.1, 0.2},
		}})
		Expect(err).NotTo(HaveOccurred())

		body := fake.bodies["upsert"]
		Expect(body["ids"]).To(Equal([]any{"acme"}))
		Expect(body["documents"]).To(Equal([]any{"Acme builds rockets"}))
		Expect(body["metadatas"]).To(Equal([]any{map[string]any{"type": "company", "founders": "Ada, Grace"}}))
	})

	It("sends the filter as a where clause and converts distances", func() {
		fake.queryOut = `{"ids":[["a","b"]],"distances":[[0,1]],"metadatas":[[{"type":"company"},{"type":"company"}]],"documents":[["doc a","doc b"]]}`

		results, err := driver.Query(context.Background(), []float32{1, 0}, 2, vector.KindFilter("company"))
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("a"))
		Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-6))
		Expect(results[1].Score).To(BeNumerically("~", 0.5, 1e-6))
		Expect(results[1].Content).To(Equal("doc b"))

		Expect(fake.bodies["query"]["where"]).To(Equal(map[string]any{"type": map[string]any{"$eq": "company"}}))
		Expect(fake.bodies["query"]["n_results"]).To(BeNumerically("==", 2))
	})

	It("omits the where clause for a zero filter", func() {
		fake.queryOut = `{"ids":[[]]}`

		results, err := driver.Query(context.Background(), []float32{1, 0}, 2, vector.Filter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
		Expect(fake.bodies["query"]).NotTo(HaveKey("where"))
	})

	It("gets documents by id", func() {
		docs, err := driver.Get(context.Background(), []string{"a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Content).To(Equal("Acme"))
		Expect(docs[0].Embedding).To(Equal([]float32{0.5, 0.5}))
	})

	It("deletes documents by id", func() {
		Expect(driver.Delete(context.Background(), []string{"a"})).To(Succeed())
		Expect(fake.bodies["delete"]["ids"]).To(Equal([]any{"a"}))
	})
})
