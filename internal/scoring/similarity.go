package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/metrics"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/queue"
	"github.com/shrimpsizemoose/semla/internal/store"
)

// HashEntries hashes each entry by name. JSON documents are re-encoded with
// sorted keys first so indentation and key order do not change the hash.
func HashEntries(entries archive.Entries) (models.FileHashes, error) {
	hashes := make(models.FileHashes, len(entries))
	for _, e := range entries {
		content := e.Raw
		if e.IsJSON() {
			canonical, err := json.Marshal(e.JSON)
			if err != nil {
				return nil, fmt.Errorf("failed to canonicalize %s: %w", e.Name, err)
			}
			content = canonical
		}
		sum := sha256.Sum256(content)
		hashes[e.Name] = hex.EncodeToString(sum[:])
	}
	return hashes, nil
}

// Similarity is the percentage of current's files whose hash matches the
// file of the same name in other.
func Similarity(current, other models.FileHashes) float64 {
	if len(current) == 0 {
		return 0
	}
	matches := 0
	for name, hash := range current {
		if h, ok := other[name]; ok && h == hash {
			matches++
		}
	}
	return float64(matches) / float64(len(current)) * 100
}

// ComputeSimilarity compares a submission with every Passed submission of
// another student for the same day and stores the best match. Candidates come
// in creation order and only a strictly higher score replaces the current
// best, so the earliest of equally similar submissions is kept.
func (g *Grader) ComputeSimilarity(ctx context.Context, id string) error {
	sub, err := g.store.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("submission %s: %w", id, store.ErrNotFound)
	}
	if sub.Freeform() {
		return nil
	}

	var (
		best    float64
		similar *string
	)
	if len(sub.FileHashes) > 0 {
		candidates, err := g.store.ListSubmissions(ctx, store.SubmissionFilter{
			Day:            sub.Day,
			Status:         models.StatusPassed,
			ExcludeStudent: sub.Student,
		})
		if err != nil {
			return err
		}

		for _, c := range candidates {
			if c.ID == sub.ID {
				continue
			}
			if score := Similarity(sub.FileHashes, c.FileHashes); score > best {
				best = score
				ref := c.ID
				similar = &ref
			}
		}
	}

	if err := g.store.SetSimilarity(ctx, sub.ID, best, similar); err != nil {
		return err
	}
	metrics.SimilarityScore.WithLabelValues(sub.Day).Observe(best)

	if similar != nil {
		logger.Info.Printf("Submission %s of %s is %.0f%% similar to %s", sub.ID, sub.Student, best, *similar)
	}
	return nil
}

// SimilarityHandler adapts ComputeSimilarity to the worker pool.
func (g *Grader) SimilarityHandler() queue.Handler {
	return func(ctx context.Context, t *queue.Task) error {
		return g.ComputeSimilarity(ctx, t.SubmissionID)
	}
}

// BackfillFileHashes recomputes hashes of every Passed archive submission and
// then rescores their similarity. Scoring starts only after every hash is
// written, so each score sees the refreshed hashes of its candidates. With
// scoreInline the scores are computed in the calling goroutine, otherwise
// they are enqueued for the worker pool. Submissions whose archive cannot be
// read are logged and skipped.
func (g *Grader) BackfillFileHashes(ctx context.Context, scoreInline bool) (int, error) {
	subs, err := g.store.ListSubmissions(ctx, store.SubmissionFilter{
		Status:     models.StatusPassed,
		ExcludeDay: models.FreeformDay,
	})
	if err != nil {
		return 0, err
	}

	var updated []string
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return len(updated), err
		}

		entries, err := g.openArchive(sub.Archive)
		if err != nil {
			logger.Error.Printf("Skipping %s: %v", sub.ID, err)
			continue
		}
		hashes, err := HashEntries(entries)
		if err != nil {
			logger.Error.Printf("Skipping %s: %v", sub.ID, err)
			continue
		}
		if err := g.store.SetFileHashes(ctx, sub.ID, hashes); err != nil {
			return len(updated), err
		}
		updated = append(updated, sub.ID)
	}
	logger.Info.Printf("Backfilled file hashes for %d of %d submissions", len(updated), len(subs))

	for _, id := range updated {
		if !scoreInline {
			g.scheduleSimilarity(ctx, id)
			continue
		}
		if err := ctx.Err(); err != nil {
			return len(updated), err
		}
		if err := g.ComputeSimilarity(ctx, id); err != nil {
			logger.Error.Printf("Failed to rescore similarity of %s: %v", id, err)
		}
	}
	return len(updated), nil
}

func (g *Grader) scheduleSimilarity(ctx context.Context, id string) {
	if g.queue == nil {
		return
	}
	if err := g.queue.Enqueue(ctx, &queue.Task{Type: queue.TaskSimilarity, SubmissionID: id}); err != nil {
		logger.Error.Printf("Failed to schedule similarity for %s: %v", id, err)
	}
}
