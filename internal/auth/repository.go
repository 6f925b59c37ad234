package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmt-marshals/backend/internal/models"
)

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, employee_id, email, password_hash, full_name,
	COALESCE(phone,''), marshal_types, role, is_active, COALESCE(photo_key,''), COALESCE(push_token,''),
	created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a user repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.EmployeeID, &u.Email, &u.Password, &u.FullName,
		&u.Phone, &u.MarshalTypes, &u.Role, &u.IsActive, &u.PhotoKey, &u.PushToken,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetByEmployeeID returns a user by the business employee identifier.
func (r *Repository) GetByEmployeeID(ctx context.Context, employeeID string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE employee_id = $1`, employeeID))
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (employee_id, email, password_hash, full_name, phone, marshal_types, role, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, u.EmployeeID, u.Email, u.Password, u.FullName, u.Phone, u.MarshalTypes, string(u.Role), u.IsActive).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// UpdateProfile updates mutable profile fields for a user.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, phone, marshalTypes string) error {
	const q = `UPDATE users SET full_name = COALESCE(NULLIF($1,''), full_name),
		phone = COALESCE(NULLIF($2,''), phone),
		marshal_types = COALESCE(NULLIF($3,''), marshal_types),
		updated_at = NOW()
		WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, fullName, phone, marshalTypes, id)
	return err
}

// UpdatePushToken stores the device push token for a user.
func (r *Repository) UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET push_token = NULLIF($1,''), updated_at = NOW() WHERE id = $2`, token, id)
	return err
}

// UpdatePhotoKey stores the S3 object key of a user's profile photo.
func (r *Repository) UpdatePhotoKey(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET photo_key = $1, updated_at = NOW() WHERE id = $2`, key, id)
	return err
}

// List returns all users ordered by employee ID, for the admin directory.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]models.UserPublic, error) {
	q := `SELECT id, employee_id, email, full_name, COALESCE(phone,''), marshal_types, role, is_active, created_at FROM users`
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.EmployeeID, &u.Email, &u.FullName, &u.Phone, &u.MarshalTypes, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// SetActive toggles a user's active flag (admin deactivation, never hard delete).
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	return err
}
