package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/uptrace/bun"
)

// AccountModel is the Bun model for provider account links.
type AccountModel struct {
	bun.BaseModel `bun:"table:provider_accounts"`

	ProviderID        string         `bun:"provider_id,pk"`
	ProviderAccountID string         `bun:"provider_account_id,pk"`
	UserID            string         `bun:"user_id,notnull"`
	AccessToken       string         `bun:"access_token"`
	RefreshToken      string         `bun:"refresh_token"`
	TokenType         string         `bun:"token_type"`
	TokenExpiresAt    *time.Time     `bun:"token_expires_at"`
	Metadata          map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt         time.Time      `bun:"created_at,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,default:current_timestamp"`
}

// AccountRepository links external provider identities to local users.
type AccountRepository struct {
	db *bun.DB
}

// NewAccountRepository creates an account repository.
func NewAccountRepository(db *bun.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Find returns the account for a provider identity, or ErrAccountNotFound.
func (r *AccountRepository) Find(ctx context.Context, providerID, providerAccountID string) (*auth.Account, error) {
	var model AccountModel
	err := r.db.NewSelect().
		Model(&model).
		Where("provider_id = ? AND provider_account_id = ?", providerID, providerAccountID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}

	return toAccount(&model), nil
}

// FindByUserID lists every linked account for a user.
func (r *AccountRepository) FindByUserID(ctx context.Context, userID string) ([]*auth.Account, error) {
	var models []AccountModel
	err := r.db.NewSelect().
		Model(&models).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*auth.Account{}, nil
		}
		return nil, err
	}

	accounts := make([]*auth.Account, len(models))
	for i := range models {
		accounts[i] = toAccount(&models[i])
	}
	return accounts, nil
}

// Upsert creates or refreshes the link. A repeated sign in with the same
// provider identity updates tokens in place instead of duplicating the row.
func (r *AccountRepository) Upsert(ctx context.Context, account *auth.Account) error {
	model := fromAccount(account)
	model.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (provider_id, provider_account_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("token_type = EXCLUDED.token_type").
		Set("token_expires_at = EXCLUDED.token_expires_at").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// Delete removes the link for a provider identity.
func (r *AccountRepository) Delete(ctx context.Context, providerID, providerAccountID string) error {
	_, err := r.db.NewDelete().
		Model((*AccountModel)(nil)).
		Where("provider_id = ? AND provider_account_id = ?", providerID, providerAccountID).
		Exec(ctx)
	return err
}

func toAccount(m *AccountModel) *auth.Account {
	return &auth.Account{
		ProviderID:        m.ProviderID,
		ProviderAccountID: m.ProviderAccountID,
		UserID:            m.UserID,
		Tokens: auth.ProviderTokens{
			AccessToken:  m.AccessToken,
			RefreshToken: m.RefreshToken,
			TokenType:    m.TokenType,
			ExpiresAt:    m.TokenExpiresAt,
		},
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromAccount(a *auth.Account) *AccountModel {
	return &AccountModel{
		ProviderID:        a.ProviderID,
		ProviderAccountID: a.ProviderAccountID,
		UserID:            a.UserID,
		AccessToken:       a.Tokens.AccessToken,
		RefreshToken:      a.Tokens.RefreshToken,
		TokenType:         a.Tokens.TokenType,
		TokenExpiresAt:    a.Tokens.ExpiresAt,
		Metadata:          a.Metadata,
		CreatedAt:         a.CreatedAt,
	}
}
