// Package repository provides Bun-backed persistence for users, provider
// accounts, remember tokens, and verification tokens.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserModel is the Bun model for users.
type UserModel struct {
	bun.BaseModel `bun:"table:users"`

	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid"`
	Email          string         `bun:"email,unique"`
	Username       string         `bun:"username"`
	Name           string         `bun:"name"`
	Image          string         `bun:"image"`
	PasswordHash   string         `bun:"password_hash"`
	Roles          []string       `bun:"roles,type:jsonb"`
	Attributes     map[string]any `bun:"attributes,type:jsonb"`
	LoginAttempts  int            `bun:"login_attempts"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at"`
	CreatedAt      time.Time      `bun:"created_at,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,default:current_timestamp"`
}

// UserRepository implements auth.UserStore using Bun.
type UserRepository struct {
	db *bun.DB
}

// NewUserRepository creates a user repository.
func NewUserRepository(db *bun.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByIdentifier implements auth.UserStore. The identifier matches either
// the email or the username.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.StoredUser, error) {
	var model UserModel
	err := r.db.NewSelect().
		Model(&model).
		Where("email = ? OR username = ?", identifier, identifier).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return toStoredUser(&model), nil
}

// FindByID loads a user by primary key, for the remember token flow.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	var model UserModel
	err := r.db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	stored := toStoredUser(&model)
	return &stored.User, nil
}

// CreateUser implements auth.UserStore.
func (r *UserRepository) CreateUser(ctx context.Context, user *auth.StoredUser) error {
	model := fromStoredUser(user)
	model.CreatedAt = time.Now()
	model.UpdatedAt = model.CreatedAt

	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return err
	}

	user.ID = model.ID.String()
	return nil
}

// TrackAttemptedLogin implements auth.UserStore.
func (r *UserRepository) TrackAttemptedLogin(ctx context.Context, user *auth.StoredUser) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*UserModel)(nil)).
		Set("login_attempts = login_attempts + 1").
		Set("login_attempt_at = ?", now).
		Where("id = ?", user.ID).
		Exec(ctx)
	return err
}

// TrackSuccessfulLogin implements auth.UserStore.
func (r *UserRepository) TrackSuccessfulLogin(ctx context.Context, user *auth.StoredUser) error {
	_, err := r.db.NewUpdate().
		Model((*UserModel)(nil)).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Where("id = ?", user.ID).
		Exec(ctx)
	return err
}

func toStoredUser(m *UserModel) *auth.StoredUser {
	return &auth.StoredUser{
		User: auth.User{
			ID:         m.ID.String(),
			Email:      m.Email,
			Name:       m.Name,
			Image:      m.Image,
			Roles:      m.Roles,
			Attributes: m.Attributes,
		},
		PasswordHash:   m.PasswordHash,
		LoginAttempts:  m.LoginAttempts,
		LoginAttemptAt: m.LoginAttemptAt,
	}
}

func fromStoredUser(u *auth.StoredUser) *UserModel {
	var id uuid.UUID
	if u.ID != "" {
		if parsed, err := uuid.Parse(u.ID); err == nil {
			id = parsed
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	username := ""
	if v, ok := u.Attributes["username"].(string); ok {
		username = v
	}

	return &UserModel{
		ID:             id,
		Email:          u.Email,
		Username:       username,
		Name:           u.Name,
		Image:          u.Image,
		PasswordHash:   u.PasswordHash,
		Roles:          u.Roles,
		Attributes:     u.Attributes,
		LoginAttempts:  u.LoginAttempts,
		LoginAttemptAt: u.LoginAttemptAt,
	}
}
