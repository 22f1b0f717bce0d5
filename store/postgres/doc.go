// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: guarded status transitions that keep COMPLETED jobs immutable,
// race-free find-or-create for tasks, transactional job resets and
// embedded SQL migrations.
package postgres
