package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/taskbot/internal/domain"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool      *pgxpool.Pool
	employees *EmployeeRepo
	tasks     *TaskRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:      pool,
		employees: NewEmployeeRepo(pool),
		tasks:     NewTaskRepo(pool),
	}, nil
}

// Migrate creates the tables the bot needs. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Employees() *EmployeeRepo                        { return s.employees }
func (s *Store) Directory() domain.DirectoryRepository          { return s.employees }
func (s *Store) MessengerLinks() domain.MessengerLinkRepository { return s.employees }
func (s *Store) Tasks() domain.TaskRepository                   { return s.tasks }
