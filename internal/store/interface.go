package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/semla/internal/models"
)

type Store interface {
	Close() error
	ApplyMigrations(dir string) error

	CreateSubmission(ctx context.Context, submission *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	ListSubmissionIDs(ctx context.Context, filter SubmissionFilter) ([]string, error)
	TransitionSubmission(ctx context.Context, id string, from, to models.SubmissionStatus, feedback string) error
	MarkStale(ctx context.Context, ids []string) error
	SetFileHashes(ctx context.Context, id string, hashes models.FileHashes) error
	SetSimilarity(ctx context.Context, id string, score float64, similar *string) error
	HasSubmission(ctx context.Context, filter SubmissionFilter) (bool, error)

	CreateSQLProblemSet(ctx context.Context, set *models.SQLProblemSet) error
	GetSQLProblemSet(ctx context.Context, id string) (*models.SQLProblemSet, error)
	CreateSQLProblem(ctx context.Context, problem *models.SQLProblem) error
	GetSQLProblem(ctx context.Context, id string) (*models.SQLProblem, error)
	UpsertSQLSolution(ctx context.Context, solution *models.SQLProblemSolution) error
	GetSQLSolution(ctx context.Context, student, problem string) (*models.SQLProblemSolution, error)
	CountSQLSolutions(ctx context.Context, student, problem string) (int, error)
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB          *sqlx.DB
	Converter   func(string) string
	Placeholder sq.PlaceholderFormat
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory in lexical order,
// translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *BaseStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.Placeholder)
}

func applyFilter(b sq.SelectBuilder, f SubmissionFilter) sq.SelectBuilder {
	if f.Day != "" {
		b = b.Where(sq.Eq{"day": f.Day})
	}
	if f.ExcludeDay != "" {
		b = b.Where(sq.NotEq{"day": f.ExcludeDay})
	}
	if f.Student != "" {
		b = b.Where(sq.Eq{"student": f.Student})
	}
	if f.ExcludeStudent != "" {
		b = b.Where(sq.NotEq{"student": f.ExcludeStudent})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	return b
}

const submissionColumns = `id, student, day, archive, demo_video, status, feedback,
	submission_summary, file_hashes, similarity_score, similar_submission,
	created_at, updated_at`

func (s *BaseStore) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	now := time.Now().UTC().UnixNano()
	if submission.CreatedAt == 0 {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now

	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (:id, :student, :day, :archive, :demo_video, :status, :feedback,
			:submission_summary, :file_hashes, :similarity_score, :similar_submission,
			:created_at, :updated_at)
	`, submission)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *BaseStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var submission models.Submission
	query := s.Converter(`SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`)

	err := s.DB.GetContext(ctx, &submission, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return &submission, nil
}

// ListSubmissions returns matching submissions in creation order.
func (s *BaseStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	b := applyFilter(s.builder().Select(submissionColumns).From("submissions"), filter).
		OrderBy("created_at ASC", "id ASC")

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build submissions query: %w", err)
	}

	var submissions []models.Submission
	if err := s.DB.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

func (s *BaseStore) ListSubmissionIDs(ctx context.Context, filter SubmissionFilter) ([]string, error) {
	b := applyFilter(s.builder().Select("id").From("submissions"), filter).
		OrderBy("created_at ASC", "id ASC")

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build submission ids query: %w", err)
	}

	var ids []string
	if err := s.DB.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list submission ids: %w", err)
	}
	return ids, nil
}

func (s *BaseStore) HasSubmission(ctx context.Context, filter SubmissionFilter) (bool, error) {
	b := applyFilter(s.builder().Select("1").From("submissions"), filter).Limit(1)

	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build existence query: %w", err)
	}

	var one int
	err = s.DB.GetContext(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check submission existence: %w", err)
	}
	return true, nil
}

// TransitionSubmission moves a submission from one status to another in a
// single statement. A row that is missing or no longer in from is left
// untouched and ErrStatusChanged is returned.
func (s *BaseStore) TransitionSubmission(ctx context.Context, id string, from, to models.SubmissionStatus, feedback string) error {
	query := s.Converter(`
		UPDATE submissions
		SET status = ?, feedback = ?, updated_at = ?
		WHERE id = ?
		AND status = ?
	`)
	res, err := s.DB.ExecContext(ctx, query, string(to), feedback, time.Now().UTC().UnixNano(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to set submission status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s is not %s: %w", id, from, ErrStatusChanged)
	}
	return nil
}

// MarkStale moves each listed submission to Stale one row at a time. There is
// no lock around the preceding read.
func (s *BaseStore) MarkStale(ctx context.Context, ids []string) error {
	query := s.Converter(`UPDATE submissions SET status = ?, updated_at = ? WHERE id = ?`)
	for _, id := range ids {
		if _, err := s.DB.ExecContext(ctx, query, string(models.StatusStale), time.Now().UTC().UnixNano(), id); err != nil {
			return fmt.Errorf("failed to mark submission %s stale: %w", id, err)
		}
	}
	return nil
}

func (s *BaseStore) SetFileHashes(ctx context.Context, id string, hashes models.FileHashes) error {
	query := s.Converter(`UPDATE submissions SET file_hashes = ?, updated_at = ? WHERE id = ?`)
	res, err := s.DB.ExecContext(ctx, query, hashes, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to set file hashes: %w", err)
	}
	return expectAffected(res, id)
}

func (s *BaseStore) SetSimilarity(ctx context.Context, id string, score float64, similar *string) error {
	query := s.Converter(`
		UPDATE submissions
		SET similarity_score = ?, similar_submission = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := s.DB.ExecContext(ctx, query, score, similar, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to set similarity: %w", err)
	}
	return expectAffected(res, id)
}

func (s *BaseStore) CreateSQLProblemSet(ctx context.Context, set *models.SQLProblemSet) error {
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO sql_problem_sets (id, title, data_set)
		VALUES (:id, :title, :data_set)
	`, set)
	if err != nil {
		return fmt.Errorf("failed to create sql problem set: %w", err)
	}
	return nil
}

func (s *BaseStore) GetSQLProblemSet(ctx context.Context, id string) (*models.SQLProblemSet, error) {
	var set models.SQLProblemSet
	query := s.Converter(`SELECT id, title, data_set FROM sql_problem_sets WHERE id = ?`)

	err := s.DB.GetContext(ctx, &set, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sql problem set: %w", err)
	}
	return &set, nil
}

func (s *BaseStore) CreateSQLProblem(ctx context.Context, problem *models.SQLProblem) error {
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO sql_problems (id, problem_set, title, correct_query, consider_order)
		VALUES (:id, :problem_set, :title, :correct_query, :consider_order)
	`, problem)
	if err != nil {
		return fmt.Errorf("failed to create sql problem: %w", err)
	}
	return nil
}

func (s *BaseStore) GetSQLProblem(ctx context.Context, id string) (*models.SQLProblem, error) {
	var problem models.SQLProblem
	query := s.Converter(`
		SELECT id, problem_set, title, correct_query, consider_order
		FROM sql_problems
		WHERE id = ?
	`)

	err := s.DB.GetContext(ctx, &problem, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sql problem: %w", err)
	}
	return &problem, nil
}

func (s *BaseStore) UpsertSQLSolution(ctx context.Context, solution *models.SQLProblemSolution) error {
	solution.UpdatedAt = time.Now().UTC().UnixNano()
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO sql_problem_solutions (student, problem, last_submitted_query, status, feedback, updated_at)
		VALUES (:student, :problem, :last_submitted_query, :status, :feedback, :updated_at)
		ON CONFLICT(student, problem) DO UPDATE SET
		last_submitted_query = :last_submitted_query,
		status = :status,
		feedback = :feedback,
		updated_at = :updated_at
	`, solution)
	if err != nil {
		return fmt.Errorf("failed to upsert sql solution: %w", err)
	}
	return nil
}

func (s *BaseStore) GetSQLSolution(ctx context.Context, student, problem string) (*models.SQLProblemSolution, error) {
	var solution models.SQLProblemSolution
	query := s.Converter(`
		SELECT student, problem, last_submitted_query, status, feedback, updated_at
		FROM sql_problem_solutions
		WHERE student = ?
		AND problem = ?
	`)

	err := s.DB.GetContext(ctx, &solution, query, student, problem)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sql solution: %w", err)
	}
	return &solution, nil
}

func (s *BaseStore) CountSQLSolutions(ctx context.Context, student, problem string) (int, error) {
	var n int
	query := s.Converter(`SELECT COUNT(*) FROM sql_problem_solutions WHERE student = ? AND problem = ?`)
	if err := s.DB.GetContext(ctx, &n, query, student, problem); err != nil {
		return 0, fmt.Errorf("failed to count sql solutions: %w", err)
	}
	return n, nil
}

func expectAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return nil
}
