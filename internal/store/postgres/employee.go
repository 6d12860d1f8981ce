package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/taskbot/internal/domain"
)

type EmployeeRepo struct {
	pool *pgxpool.Pool
}

func NewEmployeeRepo(pool *pgxpool.Pool) *EmployeeRepo {
	return &EmployeeRepo{pool: pool}
}

var (
	_ domain.DirectoryRepository     = (*EmployeeRepo)(nil)
	_ domain.MessengerLinkRepository = (*EmployeeRepo)(nil)
)

const employeeColumns = `phone, name, email, manager_phone, created_at, updated_at`

// --- Employees ---

func (r *EmployeeRepo) Create(ctx context.Context, e *domain.Employee) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO employees (phone, name, email, manager_phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Phone, e.Name, nilIfEmpty(e.Email), nilIfEmpty(e.ManagerPhone), e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("employeeRepo.Create: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("employeeRepo.Create: %w", err)
	}

	return nil
}

func (r *EmployeeRepo) Update(ctx context.Context, e *domain.Employee) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE employees SET name = $1, email = $2, manager_phone = $3, updated_at = now()
		 WHERE phone = $4`,
		e.Name, nilIfEmpty(e.Email), nilIfEmpty(e.ManagerPhone), e.Phone,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("employeeRepo.Update: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("employeeRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employeeRepo.Update: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *EmployeeRepo) Delete(ctx context.Context, phone string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM employees WHERE phone = $1`, phone)
	if err != nil {
		return fmt.Errorf("employeeRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employeeRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *EmployeeRepo) FindByPhoneOrEmail(ctx context.Context, key string) (*domain.Employee, error) {
	key = strings.TrimSpace(key)
	e, err := scanEmployee(r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+`
		 FROM employees WHERE phone = $1 OR lower(email) = lower($1)
		 ORDER BY (phone = $1) DESC
		 LIMIT 1`,
		key,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("employeeRepo.FindByPhoneOrEmail: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("employeeRepo.FindByPhoneOrEmail: %w", err)
	}

	return e, nil
}

func (r *EmployeeRepo) FindDirectReports(ctx context.Context, phone string) ([]*domain.Employee, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+employeeColumns+`
		 FROM employees WHERE manager_phone = $1 AND phone <> $1
		 ORDER BY created_at, phone`,
		phone,
	)
	if err != nil {
		return nil, fmt.Errorf("employeeRepo.FindDirectReports: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows, "employeeRepo.FindDirectReports")
}

// SearchByName matches fragment as a case-insensitive substring, in creation
// order so candidate numbering is stable between turns.
func (r *EmployeeRepo) SearchByName(ctx context.Context, fragment string) ([]*domain.Employee, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+employeeColumns+`
		 FROM employees WHERE name ILIKE '%' || $1 || '%' ESCAPE '\'
		 ORDER BY created_at, phone
		 LIMIT 50`,
		escapeLike(fragment),
	)
	if err != nil {
		return nil, fmt.Errorf("employeeRepo.SearchByName: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows, "employeeRepo.SearchByName")
}

// ListAll returns the whole directory.
func (r *EmployeeRepo) ListAll(ctx context.Context) ([]*domain.Employee, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY created_at, phone LIMIT 10000`,
	)
	if err != nil {
		return nil, fmt.Errorf("employeeRepo.ListAll: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows, "employeeRepo.ListAll")
}

// --- Messenger Links ---

func (r *EmployeeRepo) CreateMessengerLink(ctx context.Context, link *domain.MessengerLink) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messenger_links (platform, external_id, phone, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (platform, external_id) DO UPDATE SET phone = EXCLUDED.phone`,
		link.Platform, link.ExternalID, link.Phone, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("employeeRepo.CreateMessengerLink: %w", err)
	}

	return nil
}

func (r *EmployeeRepo) GetMessengerLink(ctx context.Context, platform, externalID string) (*domain.MessengerLink, error) {
	var link domain.MessengerLink

	err := r.pool.QueryRow(ctx,
		`SELECT platform, external_id, phone, created_at
		 FROM messenger_links WHERE platform = $1 AND external_id = $2`,
		platform, externalID,
	).Scan(&link.Platform, &link.ExternalID, &link.Phone, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("employeeRepo.GetMessengerLink: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("employeeRepo.GetMessengerLink: %w", err)
	}

	return &link, nil
}

func (r *EmployeeRepo) ListMessengerLinks(ctx context.Context, phone string) ([]*domain.MessengerLink, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT platform, external_id, phone, created_at
		 FROM messenger_links WHERE phone = $1 ORDER BY created_at`,
		phone,
	)
	if err != nil {
		return nil, fmt.Errorf("employeeRepo.ListMessengerLinks: %w", err)
	}
	defer rows.Close()

	var links []*domain.MessengerLink
	for rows.Next() {
		var link domain.MessengerLink
		if err := rows.Scan(&link.Platform, &link.ExternalID, &link.Phone, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("employeeRepo.ListMessengerLinks: scan: %w", err)
		}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("employeeRepo.ListMessengerLinks: rows: %w", err)
	}

	return links, nil
}

func scanEmployee(row pgx.Row) (*domain.Employee, error) {
	var e domain.Employee
	var email, manager *string

	if err := row.Scan(&e.Phone, &e.Name, &email, &manager, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Email = derefStr(email)
	e.ManagerPhone = derefStr(manager)

	return &e, nil
}

func scanEmployees(rows pgx.Rows, op string) ([]*domain.Employee, error) {
	var out []*domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}
