package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DirectoryRepository reads the identity tables owned by the HR and admin
// modules. It never writes.
//
//	employees (id, name, manager_id)
//	users     (id, username, role)
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// EmployeeName returns the display name of an employee, or "" if unknown
func (r *DirectoryRepository) EmployeeName(ctx context.Context, id string) (string, error) {
	return r.lookupString(ctx, `SELECT name FROM employees WHERE CAST(id AS TEXT) = ?`, id, "employee name")
}

// UserName returns the username of an admin user, or "" if unknown
func (r *DirectoryRepository) UserName(ctx context.Context, id string) (string, error) {
	return r.lookupString(ctx, `SELECT username FROM users WHERE CAST(id AS TEXT) = ?`, id, "user name")
}

// ManagerOf returns the id of the employee's manager, or "" if none
func (r *DirectoryRepository) ManagerOf(ctx context.Context, employeeID string) (string, error) {
	return r.lookupString(ctx, `
		SELECT CAST(manager_id AS TEXT) FROM employees
		WHERE CAST(id AS TEXT) = ? AND manager_id IS NOT NULL
	`, employeeID, "manager")
}

// AdminIDs returns the ids of every admin user
func (r *DirectoryRepository) AdminIDs(ctx context.Context) ([]string, error) {
	query := r.db.Rebind(`SELECT CAST(id AS TEXT) FROM users WHERE role = ? ORDER BY id`)

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, "admin"); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return ids, nil
}

func (r *DirectoryRepository) lookupString(ctx context.Context, query, arg, what string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find %s: %w", what, err)
	}
	return value, nil
}
