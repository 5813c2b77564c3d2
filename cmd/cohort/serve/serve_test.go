package servecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/config"
	"github.com/papercomputeco/cohort/pkg/logger"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the gateway flags with config defaults", func() {
		cmd := NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))

		f := cmd.Flags().Lookup("listen")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(config.NewDefaultConfig().Gateway.Listen))

		for _, name := range []string{"storage", "sqlite", "llm-provider", "vector-store-provider", "embedding-dimensions", "pretty", "json", "log-file"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("buildServices", func() {
	var (
		ctx    context.Context
		tmpDir string
		cfg    *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		tmpDir, err = os.MkdirTemp("", "cohort-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		cfg = config.NewDefaultConfig()
		cfg.Storage.Provider = "memory"
		cfg.VectorStore.Provider = "sqlite"
		cfg.VectorStore.Target = ":memory:"
	})

	It("wires a gateway that answers ping", func() {
		svc, err := buildServices(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(svc.Close)

		rec := httptest.NewRecorder()
		svc.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("places the sqlite database inside the config directory", func() {
		cfg.Storage.Provider = "sqlite"
		cfg.VectorStore.Target = ""

		svc, err := buildServices(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.Close()).To(Succeed())

		Expect(filepath.Join(tmpDir, "cohort.db")).To(BeAnExistingFile())
		Expect(filepath.Join(tmpDir, defaultVectorFile)).To(BeAnExistingFile())
	})

	It("wires summaries off", func() {
		cfg.Summary.Enabled = false
		svc, err := buildServices(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.Close()).To(Succeed())
	})

	DescribeTable("rejects bad settings",
		func(modify func(*config.Config), msg string) {
			modify(cfg)
			_, err := buildServices(ctx, cfg, tmpDir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("storage", func(c *config.Config) { c.Storage.Provider = "mongo" }, "unsupported storage provider"),
		Entry("postgres without dsn", func(c *config.Config) { c.Storage.Provider = "postgres" }, "postgres_dsn is required"),
		Entry("llm", func(c *config.Config) { c.LLM.Provider = "bard" }, "unsupported llm provider"),
		Entry("vector store", func(c *config.Config) { c.VectorStore.Provider = "pinecone" }, "unsupported vector store provider"),
		Entry("embedding", func(c *config.Config) { c.Embedding.Provider = "cohere" }, "unsupported embedding provider"),
		Entry("events", func(c *config.Config) { c.Events.Provider = "nats" }, "unsupported events provider"),
		Entry("summary store", func(c *config.Config) { c.Summary.Store = "memcached" }, "unsupported summary store"),
		Entry("duration", func(c *config.Config) { c.Gateway.MaxTurnDuration = "later" }, "max_turn_duration"),
	)
})

var _ = Describe("buildLogger", func() {
	It("logs to the terminal only without --log-file", func() {
		var out bytes.Buffer
		c := &serveCommander{}
		log, closeLog, err := c.buildLogger(&out)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closeLog)

		log.Info("listening", "addr", ":8080")
		Expect(out.String()).To(ContainSubstring("listening"))
	})

	It("pairs the terminal with a JSON log file", func() {
		tmpDir, err := os.MkdirTemp("", "cohort-log-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		var out bytes.Buffer
		c := &serveCommander{configDir: tmpDir, logFile: "serve.log"}
		log, closeLog, err := c.buildLogger(&out)
		Expect(err).NotTo(HaveOccurred())

		log.Info("listening", "addr", ":8080")
		Expect(closeLog()).To(Succeed())

		Expect(out.String()).To(ContainSubstring("listening"))

		raw, err := os.ReadFile(filepath.Join(tmpDir, "serve.log"))
		Expect(err).NotTo(HaveOccurred())
		var record map[string]any
		Expect(json.Unmarshal(bytes.TrimSpace(raw), &record)).To(Succeed())
		Expect(record).To(HaveKeyWithValue("msg", "listening"))
		Expect(record).To(HaveKeyWithValue("addr", ":8080"))
	})
})
