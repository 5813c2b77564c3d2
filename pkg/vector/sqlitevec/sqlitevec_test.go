package sqlitevec_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/vector"
	"github.com/papercomputeco/cohort/pkg/vector/sqlitevec"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *sqlitevec.Driver
	)

	company := func(id string, emb ...float32) vector.Document {
		return vector.Document{
			ID:        id,
			Content:   id + " company",
			Metadata:  map[string]any{"type": "company", "name": id},
			Embedding: emb,
		}
	}

	application := func(id string, emb ...float32) vector.Document {
		return vector.Document{
			ID:        id,
			Content:   id + " application",
			Metadata:  map[string]any{"type": "application", "company_name": id},
			Embedding: emb,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	Describe("NewDriver", func() {
		It("requires a database path", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("requires dimensions", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Add and Get", func() {
		It("round trips content, metadata and embedding", func() {
			doc := company("acme", 0.1, 0.2, 0.3, 0.4)
			doc.Metadata["founders"] = []string{"Ada", "Grace"}
			Expect(driver.Add(ctx, []vector.Document{doc})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"acme", "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Content).To(Equal("acme company"))
			Expect(docs[0].Metadata).To(HaveKeyWithValue("type", "company"))
			Expect(docs[0].Metadata["founders"]).To(Equal([]any{"Ada", "Grace"}))
			Expect(docs[0].Embedding).To(HaveLen(4))
			Expect(docs[0].Embedding[0]).To(BeNumerically("~", 0.1, 1e-6))
		})

		It("replaces an existing document", func() {
			Expect(driver.Add(ctx, []vector.Document{company("acme", 1, 0, 0, 0)})).To(Succeed())

			updated := application("acme", 0, 1, 0, 0)
			Expect(driver.Add(ctx, []vector.Document{updated})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"acme"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Metadata).To(HaveKeyWithValue("type", "application"))
			Expect(docs[0].Embedding[1]).To(BeNumerically("~", 1.0, 1e-6))
		})

		It("ignores empty input", func() {
			Expect(driver.Add(ctx, nil)).To(Succeed())
			docs, err := driver.Get(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeNil())
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			Expect(driver.Add(ctx, []vector.Document{
				company("near", 1, 0, 0, 0),
				company("mid", 0.7, 0.7, 0, 0),
				company("far", 0, 0, 0, 1),
				application("app-near", 0.99, 0.01, 0, 0),
			})).To(Succeed())
		})

		It("returns the closest documents first", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 2, vector.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("near"))
			Expect(results[1].ID).To(Equal("app-near"))
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-6))
		})

		It("applies the filter", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 2, vector.KindFilter("company"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("near"))
			Expect(results[1].ID).To(Equal("mid"))
		})

		It("returns fewer results when the filter matches less than topK", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 2, vector.KindFilter("application"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Metadata).To(HaveKeyWithValue("company_name", "app-near"))
		})

		It("widens the search when nearer documents are filtered out", func() {
			var docs []vector.Document
			for i := range 20 {
				docs = append(docs, company(fmt.Sprintf("c-%d", i), 1, float32(i)*0.001, 0, 0))
			}
			Expect(driver.Add(ctx, docs)).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 1, vector.KindFilter("application"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("app-near"))
		})

		It("returns nothing for an unmatched filter", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 2, vector.KindFilter("investor"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("removes documents from results", func() {
			Expect(driver.Add(ctx, []vector.Document{company("a", 1, 0, 0, 0), company("b", 0, 1, 0, 0)})).To(Succeed())
			Expect(driver.Delete(ctx, []string{"a", "missing"})).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 5, vector.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("b"))
		})
	})
})
