package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/cohort/cmd/cohort/config"
	"github.com/papercomputeco/cohort/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		subcommands := []string{}
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "cohort-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)
		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", tmpDir, "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		cmd.SilenceUsage = true
		return cmd.Execute()
	}

	loaded := func() *config.Config {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	It("sets a value and writes config.toml", func() {
		Expect(run("set", "llm.provider", "anthropic")).To(Succeed())

		_, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded().LLM.Provider).To(Equal("anthropic"))
	})

	It("rejects unknown keys", func() {
		Expect(run("set", "proxy.provider", "x")).To(MatchError(ContainSubstring("unknown config key")))
		Expect(run("get", "proxy.provider")).To(MatchError(ContainSubstring("unknown config key")))
	})

	It("rejects invalid durations", func() {
		Expect(run("set", "gateway.max_turn_duration", "soon")).To(HaveOccurred())
	})

	It("requires exactly two arguments for set", func() {
		Expect(run("set", "llm.provider")).To(HaveOccurred())
	})

	It("splits event brokers", func() {
		Expect(run("set", "events.brokers", "a:9092, b:9092")).To(Succeed())
		Expect(loaded().Events.Brokers).To(Equal([]string{"a:9092", "b:9092"}))
	})

	It("gets a value", func() {
		Expect(run("set", "summary.every_turns", "5")).To(Succeed())
		out.Reset()

		Expect(run("get", "summary.every_turns")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("5"))
	})

	It("lists every key", func() {
		Expect(run("list")).To(Succeed())
		for _, key := range config.ValidConfigKeys() {
			Expect(out.String()).To(ContainSubstring(key))
		}
		Expect(out.String()).To(ContainSubstring(`gateway.listen`))
	})
})
