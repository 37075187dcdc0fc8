package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/uptrace/bun"
)

// RememberTokenModel is the Bun model for remember tokens.
type RememberTokenModel struct {
	bun.BaseModel `bun:"table:remember_tokens"`

	Token     string    `bun:"token,pk"`
	UserID    string    `bun:"user_id,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,default:current_timestamp"`
}

// RememberTokenRepository implements auth.RememberTokenStore using Bun.
type RememberTokenRepository struct {
	db *bun.DB
}

// NewRememberTokenRepository creates a remember token repository.
func NewRememberTokenRepository(db *bun.DB) *RememberTokenRepository {
	return &RememberTokenRepository{db: db}
}

// Save implements auth.RememberTokenStore.
func (r *RememberTokenRepository) Save(ctx context.Context, token auth.RememberToken) error {
	model := &RememberTokenModel{
		Token:     token.Token,
		UserID:    token.UserID,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: time.Now(),
	}

	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// Read implements auth.RememberTokenStore.
func (r *RememberTokenRepository) Read(ctx context.Context, token string) (*auth.RememberToken, error) {
	var model RememberTokenModel
	err := r.db.NewSelect().
		Model(&model).
		Where("token = ?", token).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &auth.RememberToken{
		Token:     model.Token,
		UserID:    model.UserID,
		ExpiresAt: model.ExpiresAt,
	}, nil
}

// Rotate implements auth.RememberTokenStore. The conditional delete is the
// compare-and-swap: whoever deletes the old row wins, every other concurrent
// caller sees zero rows affected and gets (nil, nil).
func (r *RememberTokenRepository) Rotate(ctx context.Context, oldToken string, next auth.RememberToken) (*auth.RememberToken, error) {
	var rotated *auth.RememberToken

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*RememberTokenModel)(nil)).
			Where("token = ?", oldToken).
			Exec(ctx)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		model := &RememberTokenModel{
			Token:     next.Token,
			UserID:    next.UserID,
			ExpiresAt: next.ExpiresAt,
			CreatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(model).Exec(ctx); err != nil {
			return err
		}

		rotated = &next
		return nil
	})

	return rotated, err
}

// Remove implements auth.RememberTokenStore.
func (r *RememberTokenRepository) Remove(ctx context.Context, token string) error {
	_, err := r.db.NewDelete().
		Model((*RememberTokenModel)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	return err
}
