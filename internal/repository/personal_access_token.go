package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"debtster/internal/domain"
)

type PersonalAccessTokenRepository struct {
	db *sql.DB
}

func NewPersonalAccessTokenRepository(db *sql.DB) *PersonalAccessTokenRepository {
	return &PersonalAccessTokenRepository{db: db}
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Issue stores a new token and returns its plaintext form "<id>|<secret>".
// Only the sha256 of the secret is persisted.
func (r *PersonalAccessTokenRepository) Issue(ctx context.Context, userID int64, name string) (string, *domain.PersonalAccessToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("token entropy: %w", err)
	}
	secret := hex.EncodeToString(buf)

	pat := domain.PersonalAccessToken{
		UserID:    userID,
		Name:      name,
		TokenHash: hashToken(secret),
	}

	query := `
		INSERT INTO personal_access_tokens (user_id, name, token)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := conn(ctx, r.db).QueryRowContext(ctx, query, pat.UserID, pat.Name, pat.TokenHash).
		Scan(&pat.ID, &pat.CreatedAt); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("%d|%s", pat.ID, secret), &pat, nil
}

// FindTokenByPlainToken resolves a presented "<id>|<secret>" token. The id
// prefix narrows the lookup; without it the hash is matched directly.
func (r *PersonalAccessTokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	var (
		tokenID   *int64
		tokenPart string
	)

	if idx := strings.Index(plainToken, "|"); idx > 0 {
		idStr := plainToken[:idx]
		tokenPart = plainToken[idx+1:]

		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			tokenID = &id
		} else {
			log.Printf("[TOKEN] failed to parse id %q: %v", idStr, err)
		}
	} else {
		tokenPart = plainToken
	}

	hashStr := hashToken(tokenPart)

	var pat domain.PersonalAccessToken

	if tokenID != nil {
		query := `
			SELECT id, user_id, name, token, last_used_at, created_at
			FROM personal_access_tokens
			WHERE id = $1
		`

		err := conn(ctx, r.db).QueryRowContext(ctx, query, *tokenID).Scan(
			&pat.ID,
			&pat.UserID,
			&pat.Name,
			&pat.TokenHash,
			&pat.LastUsedAt,
			&pat.CreatedAt,
		)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, err
		case pat.TokenHash == hashStr:
			return &pat, nil
		default:
			log.Printf("[TOKEN] hash mismatch for id=%d", pat.ID)
		}
	}

	query := `
		SELECT id, user_id, name, token, last_used_at, created_at
		FROM personal_access_tokens
		WHERE token = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query, hashStr).Scan(
		&pat.ID,
		&pat.UserID,
		&pat.Name,
		&pat.TokenHash,
		&pat.LastUsedAt,
		&pat.CreatedAt,
	)
	if err != nil {
		return nil, errors.New("token not found")
	}

	return &pat, nil
}

func (r *PersonalAccessTokenRepository) TouchLastUsed(ctx context.Context, id int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE personal_access_tokens SET last_used_at = $2 WHERE id = $1`, id, time.Now())
	return err
}

func (r *PersonalAccessTokenRepository) Revoke(ctx context.Context, id int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM personal_access_tokens WHERE id = $1`, id)
	return err
}
