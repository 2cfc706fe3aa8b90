package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/linemk/farm-shop/internal/domain/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// pgUniqueViolation: код ошибки PostgreSQL при нарушении уникальности
const pgUniqueViolation = "23505"

type UserStorage interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	// UpdateProfile меняет имя, фамилию и адрес; email, роль и пароль не трогает.
	UpdateProfile(ctx context.Context, id int64, firstName, lastName, address string) (*models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: db}
}

const userColumns = "user_id, email, pass_hash, first_name, last_name, address, role, created_at"

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.PassHash, &user.FirstName, &user.LastName, &user.Address, &role, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = models.Role(role)
	return user, nil
}

// получение уже существующего пользователя
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = $1", id))
}

// CreateUser сохраняет пользователя; занятый email даёт ErrUserExists
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO users (email, pass_hash, first_name, last_name, role) VALUES ($1, $2, $3, $4, $5) RETURNING user_id, created_at",
		user.Email, user.PassHash, user.FirstName, user.LastName, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int64, firstName, lastName, address string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		"UPDATE users SET first_name = $1, last_name = $2, address = $3 WHERE user_id = $4 RETURNING "+userColumns,
		firstName, lastName, address, id,
	))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}
