package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/uptrace/bun"
)

// VerificationTokenModel is the Bun model for magic link tokens.
type VerificationTokenModel struct {
	bun.BaseModel `bun:"table:verification_tokens"`

	Identifier string    `bun:"identifier,pk"`
	Token      string    `bun:"token,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,default:current_timestamp"`
}

// VerificationTokenRepository implements auth.VerificationTokenStore using
// Bun. The identifier is the primary key, so inserting a fresh token
// structurally invalidates every prior one for the same identifier.
type VerificationTokenRepository struct {
	db *bun.DB
}

// NewVerificationTokenRepository creates a verification token repository.
func NewVerificationTokenRepository(db *bun.DB) *VerificationTokenRepository {
	return &VerificationTokenRepository{db: db}
}

// Create implements auth.VerificationTokenStore.
func (r *VerificationTokenRepository) Create(ctx context.Context, token auth.VerificationToken) error {
	model := &VerificationTokenModel{
		Identifier: token.Identifier,
		Token:      token.Token,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  time.Now(),
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (identifier) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)

	return err
}

// Consume implements auth.VerificationTokenStore. The conditional delete
// makes redemption single use: only the request that removes the row gets
// the token back.
func (r *VerificationTokenRepository) Consume(ctx context.Context, identifier, token string) (*auth.VerificationToken, error) {
	var consumed *auth.VerificationToken

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var model VerificationTokenModel
		err := tx.NewSelect().
			Model(&model).
			Where("identifier = ? AND token = ?", identifier, token).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		res, err := tx.NewDelete().
			Model((*VerificationTokenModel)(nil)).
			Where("identifier = ? AND token = ?", identifier, token).
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

		consumed = &auth.VerificationToken{
			Identifier: model.Identifier,
			Token:      model.Token,
			ExpiresAt:  model.ExpiresAt,
		}
		return nil
	})

	return consumed, err
}
