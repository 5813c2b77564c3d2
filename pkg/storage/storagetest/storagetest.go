// Package storagetest holds the behaviour every storage backend shares,
// written as ginkgo specs.
package storagetest

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/storage"
)

// CheckpointStoreBehaves registers checkpoint log specs against the store
// returned by newStore, which is called before each spec.
func CheckpointStoreBehaves(newStore func() storage.CheckpointStore) {
	var (
		ctx   context.Context
		store storage.CheckpointStore
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
		now = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	})

	It("returns an empty log for an unknown thread", func() {
		cps, err := store.List(ctx, "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(cps).To(BeEmpty())
	})

	It("round trips a turn", func() {
		turn := checkpoint.NewTurn(nil, "How do I describe traction?", "Lead with revenue.", now)
		Expect(store.Append(ctx, "t1", turn...)).To(Succeed())

		cps, err := store.List(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(cps).To(HaveLen(2))
		Expect(checkpoint.Reconstruct(cps)).To(HaveLen(2))

		latest := checkpoint.Latest(cps)
		Expect(latest.Step).To(Equal(2))
		Expect(latest.ID).To(Equal(turn[1].ID))
		Expect(latest.Source).To(Equal(checkpoint.SourceLoop))
		Expect(latest.Writes).To(Equal(turn[1].Writes))
		Expect(latest.Parents).To(Equal(turn[1].Parents))
		Expect(latest.CreatedAt.Equal(now)).To(BeTrue())
	})

	It("keeps threads apart", func() {
		Expect(store.Append(ctx, "t1", checkpoint.NewTurn(nil, "a", "b", now)...)).To(Succeed())
		Expect(store.Append(ctx, "t2", checkpoint.NewTurn(nil, "c", "d", now)...)).To(Succeed())

		cps, err := store.List(ctx, "t2")
		Expect(err).NotTo(HaveOccurred())
		Expect(checkpoint.Reconstruct(cps)[0].Content).To(Equal("c"))
	})

	It("rejects a taken step and stores nothing from the batch", func() {
		first := checkpoint.NewTurn(nil, "q1", "a1", now)
		Expect(store.Append(ctx, "t1", first...)).To(Succeed())

		// step 2 collides, step 3 must not be stored either
		stale := checkpoint.NewTurn(first[0], "q2", "a2", now)
		Expect(stale[0].Step).To(Equal(2))
		err := store.Append(ctx, "t1", stale...)
		Expect(err).To(MatchError(storage.ErrStepConflict))

		cps, err := store.List(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(cps).To(HaveLen(2))
	})

	It("serializes concurrent appends of the same step", func() {
		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				err := store.Append(ctx, "race", checkpoint.NewTurn(nil, "q", "a", now)...)
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				Expect(err).To(MatchError(storage.ErrStepConflict))
			}()
		}
		wg.Wait()
		Expect(succeeded).To(Equal(1))
	})
}

// SummaryStoreBehaves registers summary specs against newStore.
func SummaryStoreBehaves(newStore func() storage.SummaryStore) {
	var (
		ctx   context.Context
		store storage.SummaryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	It("reports ErrNotFound before any summary", func() {
		_, err := store.LatestSummary(ctx, "nobody")
		Expect(err).To(MatchError(storage.ErrNotFound))
	})

	It("returns the most recent summary", func() {
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		Expect(store.PutSummary(ctx, &storage.Summary{UserID: "u1", Text: "old", CreatedAt: base})).To(Succeed())
		Expect(store.PutSummary(ctx, &storage.Summary{UserID: "u1", Text: "new", CreatedAt: base.Add(time.Hour)})).To(Succeed())
		Expect(store.PutSummary(ctx, &storage.Summary{UserID: "u2", Text: "other", CreatedAt: base.Add(2 * time.Hour)})).To(Succeed())

		s, err := store.LatestSummary(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Text).To(Equal("new"))
		Expect(s.CreatedAt.Equal(base.Add(time.Hour))).To(BeTrue())
	})

	It("ignores a summary older than the stored one", func() {
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		Expect(store.PutSummary(ctx, &storage.Summary{UserID: "u1", Text: "new", CreatedAt: base.Add(time.Hour)})).To(Succeed())
		Expect(store.PutSummary(ctx, &storage.Summary{UserID: "u1", Text: "late", CreatedAt: base})).To(Succeed())

		s, err := store.LatestSummary(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Text).To(Equal("new"))
	})
}
