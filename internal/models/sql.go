package models

import "github.com/go-playground/validator/v10"

type SolutionStatus string

const (
	SolutionCorrect   SolutionStatus = "Correct"
	SolutionIncorrect SolutionStatus = "Incorrect"
)

type SQLProblemSet struct {
	ID      string `db:"id" json:"id"`
	Title   string `db:"title" json:"title"`
	DataSet string `db:"data_set" json:"data_set" validate:"required"`
}

type SQLProblem struct {
	ID            string `db:"id" json:"id"`
	ProblemSet    string `db:"problem_set" json:"problem_set" validate:"required"`
	Title         string `db:"title" json:"title"`
	CorrectQuery  string `db:"correct_query" json:"correct_query" validate:"required"`
	ConsiderOrder bool   `db:"consider_order" json:"consider_order"`
}

// SQLProblemSolution is unique per (student, problem); resubmitting
// overwrites the query and the verdict in place.
type SQLProblemSolution struct {
	Student            string         `db:"student" json:"student" validate:"required"`
	Problem            string         `db:"problem" json:"problem" validate:"required"`
	LastSubmittedQuery string         `db:"last_submitted_query" json:"last_submitted_query" validate:"required"`
	Status             SolutionStatus `db:"status" json:"status"`
	Feedback           string         `db:"feedback" json:"feedback"`
	UpdatedAt          int64          `db:"updated_at" json:"updated_at"`
}

func (p *SQLProblemSet) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}

func (p *SQLProblem) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}

func (s *SQLProblemSolution) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}
