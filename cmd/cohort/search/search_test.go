package searchcmder

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/responder"
)

const companyOutput = `{"query":"fintech","kind":"company","count":2,"results":[
	{"name":"Acme","description":"Payments for robots","batch":"W24","industries":"Fintech","similarity":"93.00%"},
	{"name":"Globex","description":"Ledgers","batch":"S21","industries":"Fintech","similarity":"71.00%"}]}`

const applicationOutput = `{"query":"answers","kind":"application","count":1,"results":[
	{"company_name":"Acme","batch":"W24","status":"accepted","questions":[{"question":"What do you make?","answer":"Robot payments"}],"similarity":"88.00%"}]}`

// fakeGateway answers /search with body and records each request.
type fakeGateway struct {
	status int
	body   string
	urls   []*url.URL
	auth   []string
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.urls = append(g.urls, r.URL)
	g.auth = append(g.auth, r.Header.Get("Authorization"))
	if g.status != 0 {
		w.WriteHeader(g.status)
	}
	_, _ = io.WriteString(w, g.body)
}

var _ = Describe("SearchAPI", func() {
	var (
		gw  *fakeGateway
		srv *httptest.Server
	)

	BeforeEach(func() {
		gw = &fakeGateway{body: companyOutput}
		srv = httptest.NewServer(gw)
		DeferCleanup(srv.Close)
	})

	It("sends the query parameters and bearer token", func() {
		out, err := SearchAPI(context.Background(), srv.Client(), srv.URL, "tok", "fintech", "company", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(2))
		Expect(out.Kind).To(Equal(responder.KindCompany))

		Expect(gw.urls).To(HaveLen(1))
		Expect(gw.urls[0].Path).To(Equal("/search"))
		Expect(gw.urls[0].Query().Get("query")).To(Equal("fintech"))
		Expect(gw.urls[0].Query().Get("kind")).To(Equal("company"))
		Expect(gw.urls[0].Query().Get("top_k")).To(Equal("3"))
		Expect(gw.auth).To(Equal([]string{"Bearer tok"}))
	})

	It("leaves classification to the gateway without a kind", func() {
		_, err := SearchAPI(context.Background(), srv.Client(), srv.URL+"/", "", "fintech", "", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(gw.urls[0].Path).To(Equal("/search"))
		Expect(gw.urls[0].Query().Has("kind")).To(BeFalse())
		Expect(gw.auth).To(Equal([]string{""}))
	})

	It("surfaces the gateway's error message", func() {
		gw.status = http.StatusBadRequest
		gw.body = `{"error":"query parameter is required"}`
		_, err := SearchAPI(context.Background(), srv.Client(), srv.URL, "", "x", "", 5)
		Expect(err).To(MatchError(ContainSubstring("HTTP 400): query parameter is required")))
	})
})

var _ = Describe("Output.Hits", func() {
	It("flattens application records", func() {
		gw := &fakeGateway{body: applicationOutput}
		srv := httptest.NewServer(gw)
		DeferCleanup(srv.Close)

		out, err := SearchAPI(context.Background(), srv.Client(), srv.URL, "", "answers", "", 5)
		Expect(err).NotTo(HaveOccurred())

		hits, err := out.Hits()
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(Equal([]Hit{{
			Name:       "Acme",
			Detail:     "W24 accepted",
			Preview:    "What do you make? Robot payments",
			Similarity: "88.00%",
		}}))
	})
})

var _ = Describe("search command", func() {
	var (
		gw  *fakeGateway
		srv *httptest.Server
		out *bytes.Buffer
	)

	BeforeEach(func() {
		gw = &fakeGateway{body: companyOutput}
		srv = httptest.NewServer(gw)
		DeferCleanup(srv.Close)
		out = &bytes.Buffer{}
	})

	It("prints ranked results", func() {
		c := &searchCommander{query: "fintech", topK: 5, gatewayTarget: srv.URL, out: out}
		Expect(c.run(context.Background())).To(Succeed())

		Expect(out.String()).To(ContainSubstring("#1"))
		Expect(out.String()).To(ContainSubstring("Acme"))
		Expect(out.String()).To(ContainSubstring("similarity: 93.00%"))
		Expect(out.String()).To(ContainSubstring("Payments for robots"))
		Expect(out.String()).To(ContainSubstring("#2"))
	})

	It("prints only names with --quiet", func() {
		c := &searchCommander{query: "fintech", topK: 5, quiet: true, gatewayTarget: srv.URL, out: out}
		Expect(c.run(context.Background())).To(Succeed())
		Expect(out.String()).To(Equal("Acme\nGlobex\n"))
	})

	It("reports an empty result set", func() {
		gw.body = `{"query":"x","kind":"company","count":0,"results":[]}`
		c := &searchCommander{query: "x", topK: 5, gatewayTarget: srv.URL, out: out}
		Expect(c.run(context.Background())).To(Succeed())
		Expect(out.String()).To(Equal("No results found.\n"))
	})

	It("rejects an unknown kind before calling the gateway", func() {
		c := &searchCommander{query: "x", kind: "founder", topK: 5, gatewayTarget: srv.URL, out: out}
		Expect(c.run(context.Background())).To(MatchError(ContainSubstring("unknown record kind")))
		Expect(gw.urls).To(BeEmpty())
	})

	It("registers its flags", func() {
		cmd := NewSearchCmd()
		for _, name := range []string{"gateway-target", "top", "kind", "quiet", "token"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})
