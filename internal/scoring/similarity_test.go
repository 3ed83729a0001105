package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/queue"
)

func TestHashEntriesIgnoresJSONFormatting(t *testing.T) {
	compact, err := archive.Inspect(zipBytes(t, map[string]string{
		"airline.json": `{"name":"Airline","fields":[{"fieldtype":"Int"}]}`,
		"airline.js":   "frm.add_web_link(url)",
	}))
	require.NoError(t, err)

	pretty, err := archive.Inspect(zipBytes(t, map[string]string{
		"airline.json": "{\n  \"fields\": [\n    {\"fieldtype\": \"Int\"}\n  ],\n  \"name\": \"Airline\"\n}\n",
		"airline.js":   "frm.add_web_link( url )",
	}))
	require.NoError(t, err)

	a, err := HashEntries(compact)
	require.NoError(t, err)
	b, err := HashEntries(pretty)
	require.NoError(t, err)

	assert.Equal(t, a["airline.json"], b["airline.json"])
	assert.NotEqual(t, a["airline.js"], b["airline.js"])
	assert.Len(t, a["airline.json"], 64)
}

func TestSimilarity(t *testing.T) {
	current := models.FileHashes{"a.json": "1", "b.json": "2", "c.py": "3", "d.js": "4"}

	assert.Equal(t, 100.0, Similarity(current, current))
	assert.Equal(t, 50.0, Similarity(current, models.FileHashes{"a.json": "1", "b.json": "2"}))
	assert.Equal(t, 25.0, Similarity(current, models.FileHashes{"a.json": "1", "b.json": "x", "z.json": "2"}))
	assert.Equal(t, 0.0, Similarity(current, nil))
	assert.Equal(t, 0.0, Similarity(nil, current))
}

func TestComputeSimilarity(t *testing.T) {
	ctx := context.Background()
	hashes := models.FileHashes{"airline.json": "h1", "airplane.json": "h2"}

	type record struct {
		id      string
		student string
		day     string
		status  models.SubmissionStatus
		hashes  models.FileHashes
	}

	seed := func(t *testing.T, env *testEnv, records ...record) {
		t.Helper()
		for i, r := range records {
			require.NoError(t, env.store.CreateSubmission(ctx, &models.Submission{
				ID:         r.id,
				Student:    r.student,
				Day:        r.day,
				Archive:    r.id + ".zip",
				Status:     r.status,
				FileHashes: r.hashes,
				CreatedAt:  int64(i + 1),
			}))
		}
	}

	result := func(t *testing.T, env *testEnv, id string) (float64, *string) {
		t.Helper()
		sub, err := env.store.GetSubmission(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, sub)
		return sub.SimilarityScore, sub.SimilarSubmission
	}

	t.Run("identical to one prior passed submission", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"prior", "bob@example.com", models.Day1, models.StatusPassed, hashes},
			record{"current", "ada@example.com", models.Day1, models.StatusPassed, hashes},
		)

		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		score, similar := result(t, env, "current")
		assert.Equal(t, 100.0, score)
		require.NotNil(t, similar)
		assert.Equal(t, "prior", *similar)
	})

	t.Run("nothing in common", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"prior", "bob@example.com", models.Day1, models.StatusPassed, models.FileHashes{"other.json": "zz"}},
			record{"current", "ada@example.com", models.Day1, models.StatusFailed, hashes},
		)

		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		score, similar := result(t, env, "current")
		assert.Equal(t, 0.0, score)
		assert.Nil(t, similar)
	})

	t.Run("only passed submissions of other students on the same day count", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"own", "ada@example.com", models.Day1, models.StatusPassed, hashes},
			record{"failed", "bob@example.com", models.Day1, models.StatusFailed, hashes},
			record{"other-day", "bob@example.com", models.Day2, models.StatusPassed, hashes},
			record{"half", "cyd@example.com", models.Day1, models.StatusPassed, models.FileHashes{"airline.json": "h1"}},
			record{"current", "ada@example.com", models.Day1, models.StatusCheckInProgress, hashes},
		)

		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		score, similar := result(t, env, "current")
		assert.Equal(t, 50.0, score)
		require.NotNil(t, similar)
		assert.Equal(t, "half", *similar)
	})

	t.Run("ties keep the earliest submission", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"zz-first", "bob@example.com", models.Day1, models.StatusPassed, hashes},
			record{"aa-second", "cyd@example.com", models.Day1, models.StatusPassed, hashes},
			record{"current", "ada@example.com", models.Day1, models.StatusPassed, hashes},
		)

		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		_, similar := result(t, env, "current")
		require.NotNil(t, similar)
		assert.Equal(t, "zz-first", *similar)
	})

	t.Run("recomputing is idempotent", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"prior", "bob@example.com", models.Day1, models.StatusPassed, hashes},
			record{"current", "ada@example.com", models.Day1, models.StatusPassed, hashes},
		)

		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		score, similar := result(t, env, "current")
		assert.Equal(t, 100.0, score)
		assert.Equal(t, "prior", *similar)
	})

	t.Run("submission without hashes", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"prior", "bob@example.com", models.Day1, models.StatusPassed, hashes},
			record{"current", "ada@example.com", models.Day1, models.StatusPassed, nil},
		)

		require.NoError(t, env.grader.ComputeSimilarity(ctx, "current"))
		score, similar := result(t, env, "current")
		assert.Equal(t, 0.0, score)
		assert.Nil(t, similar)
	})

	t.Run("handler runs the same computation", func(t *testing.T) {
		env := setupGrader(t, false)
		seed(t, env,
			record{"prior", "bob@example.com", models.Day1, models.StatusPassed, hashes},
			record{"current", "ada@example.com", models.Day1, models.StatusPassed, hashes},
		)

		handler := env.grader.SimilarityHandler()
		require.NoError(t, handler(ctx, &queue.Task{Type: queue.TaskSimilarity, SubmissionID: "current"}))
		score, _ := result(t, env, "current")
		assert.Equal(t, 100.0, score)

		assert.Error(t, handler(ctx, &queue.Task{Type: queue.TaskSimilarity, SubmissionID: "missing"}))
	})
}

func TestBackfillFileHashes(t *testing.T) {
	env := setupGrader(t, false)
	ctx := context.Background()

	ref := env.writeArchive(t, "day1.zip", fixtureDay1Files())
	for _, sub := range []*models.Submission{
		{ID: "passed", Student: "ada@example.com", Day: models.Day1, Archive: ref, Status: models.StatusPassed},
		{ID: "failed", Student: "bob@example.com", Day: models.Day1, Archive: ref, Status: models.StatusFailed},
		{ID: "video", Student: "ada@example.com", Day: models.Day4, DemoVideo: "demo", Status: models.StatusPassed},
		{ID: "lost", Student: "cyd@example.com", Day: models.Day1, Archive: "gone.zip", Status: models.StatusPassed},
	} {
		require.NoError(t, env.store.CreateSubmission(ctx, sub))
	}
	env.enqueuer.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *queue.Task) bool {
		return task.SubmissionID == "passed"
	})).Return(nil).Once()

	updated, err := env.grader.BackfillFileHashes(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	passed, err := env.store.GetSubmission(ctx, "passed")
	require.NoError(t, err)
	assert.Len(t, passed.FileHashes, 4)

	failed, err := env.store.GetSubmission(ctx, "failed")
	require.NoError(t, err)
	assert.Empty(t, failed.FileHashes)

	env.enqueuer.AssertExpectations(t)
}

func TestBackfillFileHashesScoresInline(t *testing.T) {
	env := setupGrader(t, false)
	ctx := context.Background()

	ref := env.writeArchive(t, "day1.zip", fixtureDay1Files())
	for _, sub := range []*models.Submission{
		{ID: "first", Student: "ada@example.com", Day: models.Day1, Archive: ref, Status: models.StatusPassed, CreatedAt: 1},
		{ID: "second", Student: "bob@example.com", Day: models.Day1, Archive: ref, Status: models.StatusPassed, CreatedAt: 2},
	} {
		require.NoError(t, env.store.CreateSubmission(ctx, sub))
	}

	updated, err := env.grader.BackfillFileHashes(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	// both hashes were written before either score was computed
	for id, other := range map[string]string{"first": "second", "second": "first"} {
		sub, err := env.store.GetSubmission(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, sub.SimilarityScore, 1e-9, id)
		require.NotNil(t, sub.SimilarSubmission, id)
		assert.Equal(t, other, *sub.SimilarSubmission)
	}

	env.enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}
