package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a created token. Returns ErrDuplicateKey if mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.TokenIdentity) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			mint, authority, name, symbol, uri, decimals, create_signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Mint,
		t.Authority,
		t.Name,
		t.Symbol,
		t.URI,
		int16(t.Decimals),
		t.CreateSignature,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.TokenIdentity, error) {
	query := `
		SELECT mint, authority, name, symbol, uri, decimals, create_signature, created_at
		FROM tokens
		WHERE mint = $1
	`

	t, err := scanToken(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by mint: %w", err)
	}
	return t, nil
}

// List returns all tokens ordered by created_at ASC.
func (s *TokenStore) List(ctx context.Context) ([]*domain.TokenIdentity, error) {
	query := `
		SELECT mint, authority, name, symbol, uri, decimals, create_signature, created_at
		FROM tokens
		ORDER BY created_at ASC, mint ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.TokenIdentity
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(row pgx.Row) (*domain.TokenIdentity, error) {
	var t domain.TokenIdentity
	var decimals int16

	err := row.Scan(
		&t.Mint,
		&t.Authority,
		&t.Name,
		&t.Symbol,
		&t.URI,
		&decimals,
		&t.CreateSignature,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Decimals = uint8(decimals)
	return &t, nil
}
