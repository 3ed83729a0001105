// Package scoring decides the verdict for uploaded submissions, keeps one
// submission in progress per student and day, and scores similarity between
// submissions.
package scoring

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/blob"
	"github.com/shrimpsizemoose/semla/internal/metrics"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/notify"
	"github.com/shrimpsizemoose/semla/internal/queue"
	"github.com/shrimpsizemoose/semla/internal/rubric"
	"github.com/shrimpsizemoose/semla/internal/store"
)

var (
	ErrUnsupportedDay  = errors.New("unsupported day")
	ErrStaleSubmission = errors.New("submission is no longer awaiting a verdict")
	ErrInvalidVerdict  = errors.New("verdict must be Passed or Failed")
)

// InputError rejects an upload before anything is recorded. Message is safe
// to show to the student.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *InputError) Unwrap() error { return e.Err }

type Upload struct {
	Student   string
	Day       string
	Archive   string
	DemoVideo string
}

type Grader struct {
	store    store.Store
	blobs    blob.Resolver
	rules    *rubric.RuleTable
	queue    queue.Enqueuer
	notifier notify.Sender
	devMode  bool
}

func NewGrader(s store.Store, blobs blob.Resolver, rules *rubric.RuleTable, q queue.Enqueuer, n notify.Sender, devMode bool) *Grader {
	return &Grader{
		store:    s,
		blobs:    blobs,
		rules:    rules,
		queue:    q,
		notifier: n,
		devMode:  devMode,
	}
}

// EvaluateSubmission runs the day rubric on an upload and records the result.
// Earlier submissions of the same student and day that are still in progress
// become Stale. Similarity scoring is scheduled once the record exists.
func (g *Grader) EvaluateSubmission(ctx context.Context, up Upload) (*models.Submission, error) {
	start := time.Now()

	sub, err := g.evaluate(ctx, up)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			metrics.RejectedSubmissionsTotal.WithLabelValues(up.Day).Inc()
			logger.Info.Printf("Rejected day %s upload of %s: %v", up.Day, up.Student, err)
		}
		return nil, err
	}
	metrics.EvaluationDuration.WithLabelValues(sub.Day).Observe(time.Since(start).Seconds())

	if err := g.supersede(ctx, sub); err != nil {
		return nil, err
	}
	if err := g.store.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues(sub.Day, string(sub.Status)).Inc()
	logger.Info.Printf("Submission %s (day %s, %s): %s", sub.ID, sub.Day, sub.Student, sub.Status)

	if !sub.Freeform() {
		g.scheduleSimilarity(ctx, sub.ID)
	}
	return sub, nil
}

func (g *Grader) evaluate(ctx context.Context, up Upload) (*models.Submission, error) {
	switch up.Day {
	case models.Day1, models.Day2, models.Day3, models.Day4:
	default:
		return nil, &InputError{Message: "Unsupported day.", Err: ErrUnsupportedDay}
	}

	sub := &models.Submission{
		ID:        uuid.NewString(),
		Student:   up.Student,
		Day:       up.Day,
		Archive:   up.Archive,
		DemoVideo: up.DemoVideo,
		Status:    models.StatusUnchecked,
	}
	if !sub.Freeform() && !strings.HasSuffix(strings.ToLower(sub.Archive), ".zip") {
		return nil, &InputError{Message: "Please upload a zip file."}
	}
	if err := sub.Validate(); err != nil {
		return nil, &InputError{Message: "Submission is incomplete.", Err: err}
	}

	if sub.Freeform() {
		sub.Summary = sub.DemoVideo
		v, _ := g.judge(ctx, sub.Day, nil)
		sub.Status, sub.Feedback = v.status, v.feedback
		return sub, nil
	}

	entries, err := g.openArchive(sub.Archive)
	if err != nil {
		return nil, err
	}

	v, err := g.judge(ctx, sub.Day, entries)
	if err != nil {
		var malformed *rubric.MalformedError
		if errors.As(err, &malformed) {
			return nil, &InputError{Message: malformed.Message(), Err: err}
		}
		return nil, err
	}
	sub.Status, sub.Feedback = v.status, v.feedback
	sub.Summary = entries.Summary()

	if sub.FileHashes, err = HashEntries(entries); err != nil {
		return nil, err
	}
	return sub, nil
}

// openArchive resolves and inspects an archive. Problems with the archive
// content come back as *InputError.
func (g *Grader) openArchive(ref string) (archive.Entries, error) {
	path, err := g.blobs.Path(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve archive %s: %w", ref, err)
	}

	entries, err := archive.Open(path)
	if err != nil {
		var archiveErr *archive.Error
		switch {
		case errors.As(err, &archiveErr):
			return nil, &InputError{Message: archiveErr.Message(), Err: err}
		case errors.Is(err, zip.ErrFormat):
			return nil, &InputError{Message: "Please upload a zip file.", Err: err}
		}
		return nil, err
	}
	return entries, nil
}

// supersede is a plain read then write. Two uploads racing for the same slot
// may both stay in progress.
func (g *Grader) supersede(ctx context.Context, sub *models.Submission) error {
	ids, err := g.store.ListSubmissionIDs(ctx, store.SubmissionFilter{
		Day:     sub.Day,
		Student: sub.Student,
		Status:  models.StatusCheckInProgress,
	})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := g.store.MarkStale(ctx, ids); err != nil {
		return err
	}
	logger.Debug.Printf("Marked %d day %s submissions of %s as stale", len(ids), sub.Day, sub.Student)
	return nil
}

// CompleteCheck records the verdict of an external check on a submission
// that is still in progress and notifies the student.
func (g *Grader) CompleteCheck(ctx context.Context, id string, status models.SubmissionStatus, feedback string) (*models.Submission, error) {
	if status != models.StatusPassed && status != models.StatusFailed {
		return nil, ErrInvalidVerdict
	}

	sub, err := g.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", id, store.ErrNotFound)
	}
	if sub.Status != models.StatusCheckInProgress {
		return nil, fmt.Errorf("submission %s is %s: %w", id, sub.Status, ErrStaleSubmission)
	}

	// a supersession may land between the read above and this write
	err = g.store.TransitionSubmission(ctx, id, models.StatusCheckInProgress, status, feedback)
	if errors.Is(err, store.ErrStatusChanged) {
		return nil, fmt.Errorf("submission %s: %w", id, ErrStaleSubmission)
	}
	if err != nil {
		return nil, err
	}
	sub.Status, sub.Feedback = status, feedback
	metrics.SubmissionsTotal.WithLabelValues(sub.Day, string(status)).Inc()

	g.notifyStudent(ctx, sub)
	return sub, nil
}

func (g *Grader) notifyStudent(ctx context.Context, sub *models.Submission) {
	if g.devMode || sub.Freeform() || g.notifier == nil {
		return
	}
	err := g.notifier.Send(ctx, notify.Message{
		To:      sub.Student,
		Subject: fmt.Sprintf("There is an update on your submission for Day %s", sub.Day),
		Body:    sub.Feedback,
	})
	if err != nil {
		logger.Error.Printf("Failed to notify %s about %s: %v", sub.Student, sub.ID, err)
	}
}

// Summary reports, for each archive day, whether student has a Passed
// submission. Keys are "day-1" to "day-3".
func (g *Grader) Summary(ctx context.Context, student string) (map[string]bool, error) {
	summary := make(map[string]bool, 3)
	for _, day := range []string{models.Day1, models.Day2, models.Day3} {
		passed, err := g.store.HasSubmission(ctx, store.SubmissionFilter{
			Day:     day,
			Student: student,
			Status:  models.StatusPassed,
		})
		if err != nil {
			return nil, err
		}
		summary["day-"+day] = passed
	}
	return summary, nil
}
