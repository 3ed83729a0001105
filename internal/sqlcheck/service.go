package sqlcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/blob"
	"github.com/shrimpsizemoose/semla/internal/metrics"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/store"
)

var ErrProblemNotFound = errors.New("sql problem not found")

type Service struct {
	store store.Store
	blobs blob.Resolver
}

func NewService(s store.Store, blobs blob.Resolver) *Service {
	return &Service{store: s, blobs: blobs}
}

func (s *Service) CreateProblemSet(ctx context.Context, set *models.SQLProblemSet) error {
	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("invalid problem set: %w", err)
	}
	return s.store.CreateSQLProblemSet(ctx, set)
}

func (s *Service) CreateProblem(ctx context.Context, problem *models.SQLProblem) error {
	if problem.ID == "" {
		problem.ID = uuid.NewString()
	}
	if err := problem.Validate(); err != nil {
		return fmt.Errorf("invalid problem: %w", err)
	}
	return s.store.CreateSQLProblem(ctx, problem)
}

// CheckSolution grades query for student and stores the verdict, replacing
// any earlier attempt at the same problem.
func (s *Service) CheckSolution(ctx context.Context, problemID, query, student string) (*models.SQLProblemSolution, error) {
	solution := &models.SQLProblemSolution{
		Student:            student,
		Problem:            problemID,
		LastSubmittedQuery: query,
	}
	if err := solution.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solution: %w", err)
	}

	problem, err := s.store.GetSQLProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, fmt.Errorf("%s: %w", problemID, ErrProblemNotFound)
	}

	set, err := s.store.GetSQLProblemSet(ctx, problem.ProblemSet)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, fmt.Errorf("problem set %s of %s: %w", problem.ProblemSet, problemID, ErrProblemNotFound)
	}

	var res Result
	if path, err := s.blobs.Path(set.DataSet); err != nil {
		logger.Error.Printf("Data set %s for problem %s is unavailable: %v", set.DataSet, problemID, err)
		res = incorrect("The data set for this problem is unavailable: %v", err)
	} else {
		res = Check(ctx, path, problem.CorrectQuery, query, problem.ConsiderOrder)
	}

	solution.Status = res.Status
	solution.Feedback = res.Feedback
	if err := s.store.UpsertSQLSolution(ctx, solution); err != nil {
		return nil, err
	}

	metrics.SQLChecksTotal.WithLabelValues(string(res.Status)).Inc()
	logger.Debug.Printf("SQL solution %s/%s is %s", student, problemID, res.Status)

	return solution, nil
}
