package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/retrieval"
	"github.com/papercomputeco/cohort/pkg/session"
	"github.com/papercomputeco/cohort/pkg/sse"
	"github.com/papercomputeco/cohort/pkg/storage"
	"github.com/papercomputeco/cohort/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/cohort/pkg/utils/test"
)

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Append(context.Context, string, ...*checkpoint.Checkpoint) error {
	return errStoreDown
}

func (failingStore) List(context.Context, string) ([]*checkpoint.Checkpoint, error) {
	return nil, errStoreDown
}

type fixture struct {
	server    *Server
	store     *inmemory.Driver
	vectors   *testutils.MockVectorDriver
	completer *testutils.ScriptedCompleter
	registry  *session.Registry
}

// newFixture wires a server over in-memory collaborators. modify may
// adjust the config before the server is built.
func newFixture(checkpoints storage.CheckpointStore, modify func(*Config)) *fixture {
	f := &fixture{
		store:     inmemory.NewDriver(),
		vectors:   testutils.NewMockVectorDriver(),
		completer: testutils.NewScriptedCompleter("Acme builds payments software."),
		registry:  session.NewRegistry(session.RegistryConfig{}),
	}
	if checkpoints == nil {
		checkpoints = f.store
	}

	searcher := retrieval.NewSearcher(testutils.NewMockEmbedder(), f.vectors, logger.Nop())
	resp, err := responder.New(responder.Config{
		Searcher:  searcher,
		Completer: f.completer,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	sessions, err := session.NewManager(session.ManagerConfig{
		Store:     checkpoints,
		Responder: resp,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	c := Config{
		Registry:  f.registry,
		Sessions:  sessions,
		Summaries: f.store,
		Searcher:  searcher,
		Logger:    logger.Nop(),
	}
	if modify != nil {
		modify(&c)
	}

	f.server, err = NewServer(c)
	Expect(err).NotTo(HaveOccurred())
	return f
}

func (f *fixture) do(req *http.Request) *http.Response {
	resp, err := f.server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func newChatRequest(message, threadID string) *http.Request {
	body, err := json.Marshal(chatRequest{Message: message, ThreadID: threadID})
	Expect(err).NotTo(HaveOccurred())

	req, err := http.NewRequest(http.MethodPost, "/chat", strings.NewReader(string(body)))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func (f *fixture) postChat(message, threadID string) *http.Response {
	return f.do(newChatRequest(message, threadID))
}

// as sets a bearer token on req.
func as(token string, req *http.Request) *http.Request {
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	return req
}

func readFrames(body io.Reader) []string {
	r := sse.NewReader(body)
	var frames []string
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return frames
		}
		frames = append(frames, ev.Data)
	}
}

func decodeJSON(body io.Reader, v any) {
	Expect(json.NewDecoder(body).Decode(v)).To(Succeed())
}
