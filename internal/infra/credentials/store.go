// Package credentials keeps provider API keys in the integration_tokens
// table so operators can rotate them without redeploying.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"genflow/internal/infra"
	"genflow/internal/sqlinline"
)

const (
	ProviderKie    = "kie"
	ProviderQwen   = "qwen"
	ProviderHeyGen = "heygen"
)

// Providers lists the credential names the service reads.
var Providers = []string{ProviderKie, ProviderQwen, ProviderHeyGen}

// IsKnown reports whether provider is one of Providers.
func IsKnown(provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, normalize(provider))
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers a key from the environment and falls back to the table.
func (s *Store) Resolve(ctx context.Context, provider, fromEnv string) (string, error) {
	if key := strings.TrimSpace(fromEnv); key != "" {
		return key, nil
	}
	if s == nil || s.sql == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	provider = normalize(provider)
	if !IsKnown(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("store %s token: %w", provider, err)
	}
	return nil
}

// DeleteToken removes the stored key. It reports whether a row existed.
func (s *Store) DeleteToken(ctx context.Context, provider string) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, normalize(provider))
	if err != nil {
		return false, fmt.Errorf("delete %s token: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Entry describes a stored key without exposing it.
type Entry struct {
	Provider  string
	UpdatedAt time.Time
}

func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationTokens)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Provider, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
