package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/blob"
	"github.com/shrimpsizemoose/semla/internal/notify"
	"github.com/shrimpsizemoose/semla/internal/queue"
	"github.com/shrimpsizemoose/semla/internal/rubric"
	"github.com/shrimpsizemoose/semla/internal/scoring"
	"github.com/shrimpsizemoose/semla/internal/sqlcheck"
	"github.com/shrimpsizemoose/semla/internal/store"
)

type Service struct {
	Config *Config
	Store  store.Store
	Auth   *Auth
	Blobs  *blob.LocalStore
	Queue  queue.Queue
	Grader *scoring.Grader
	SQL    *sqlcheck.Service
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewServiceFromConfig(context.Background(), config)
}

func NewServiceFromConfig(ctx context.Context, config *Config) (*Service, error) {
	s := &Service{Config: config}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	var err error
	s.Store, err = NewStore(DBConfigFromDSN(config.Database.DSN, config.Database.MigrationsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	s.Auth, err = NewAuth(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	s.Blobs, err = blob.NewLocalStore(config.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init blob store: %w", err)
	}

	s.Queue, err = newQueue(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to init queue: %w", err)
	}

	rules, err := rubric.LoadRuleFile(config.Rubric.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rubric rules: %w", err)
	}

	s.Grader = scoring.NewGrader(s.Store, s.Blobs, rules, s.Queue, newSender(config), config.Server.DevMode)
	s.SQL = sqlcheck.NewService(s.Store, s.Blobs)

	ok = true
	return s, nil
}

func newQueue(ctx context.Context, config *Config) (queue.Queue, error) {
	if config.Queue.Backend == QueueRedis {
		q, err := queue.NewRedisQueue(ctx, config.Queue.RedisURL, config.Queue.Key)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return queue.NewMemoryQueue(0), nil
}

func newSender(config *Config) notify.Sender {
	if config.Server.DevMode || config.Notify.SMTPAddr == "" {
		logger.Info.Printf("Notifications are logged only")
		return notify.LogSender{}
	}
	return &notify.SMTPSender{
		Addr:          config.Notify.SMTPAddr,
		From:          config.Notify.From,
		Username:      config.Notify.Username,
		Password:      config.Notify.Password,
		SubjectPrefix: config.Notify.SubjectPrefix,
	}
}

// NewWorkerPool builds the pool that runs deferred similarity scoring.
func (s *Service) NewWorkerPool() *queue.WorkerPool {
	return queue.NewWorkerPool(s.Queue, map[string]queue.Handler{
		queue.TaskSimilarity: s.Grader.SimilarityHandler(),
	}, s.Config.Queue.Workers, s.Config.Queue.MaxAttempts)
}

// Backfill refreshes file hashes and similarity scores of Passed
// submissions. The memory queue lives only as long as this process and has
// no worker pool here, so with that backend the scores are computed inline.
func (s *Service) Backfill(ctx context.Context) (int, error) {
	return s.Grader.BackfillFileHashes(ctx, s.Config.Queue.Backend == QueueMemory)
}

func (s *Service) ValidateAuthAndStudent(r *http.Request, student string) error {
	if !s.Config.Server.EnableAuth {
		return nil
	}

	authHeader := r.Header.Get(s.Auth.tokenHeader)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("Invalid authorization header format: %w", ErrUnauthorized)
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	return s.Auth.ValidateToken(r.Context(), student, token)
}

func (s *Service) ValidateHeaders(headers map[string][]string) bool {
	for _, required := range s.Config.API.RequiredHeaders {
		value := headers[http.CanonicalHeaderKey(required.Name)]
		if len(value) == 0 || !strings.EqualFold(value[0], required.Value) {
			return false
		}
	}
	return true
}

func (s *Service) Close() error {
	var errs []error

	if s.Queue != nil {
		if err := s.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("queue: %w", err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.Auth != nil {
		if err := s.Auth.Close(); err != nil {
			errs = append(errs, fmt.Errorf("auth: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
