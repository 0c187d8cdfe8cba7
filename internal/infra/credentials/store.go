// Package credentials keeps provider key material in the integration_tokens
// table so the signing proxy can start without keys in its environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"visualgen/internal/infra"
	"visualgen/internal/sqlinline"
)

const (
	ProviderVolcengine = "volcengine"
)

// VolcengineKeys is one stored key pair. The access key lives in the token
// column; everything else in properties.
type VolcengineKeys struct {
	AccessKey string `json:"-"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region,omitempty"`
	Service   string `json:"service,omitempty"`
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the integration_tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokens)
	return err
}

// VolcengineKeys loads the stored pair. ok is false when nothing is stored.
func (s *Store) VolcengineKeys(ctx context.Context) (VolcengineKeys, bool, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationCredential, ProviderVolcengine)
	var (
		token string
		props []byte
	)
	if err := row.Scan(&token, &props); err != nil {
		if infra.IsNoRows(err) {
			return VolcengineKeys{}, false, nil
		}
		return VolcengineKeys{}, false, err
	}

	var keys VolcengineKeys
	if len(props) > 0 {
		if err := json.Unmarshal(props, &keys); err != nil {
			return VolcengineKeys{}, false, fmt.Errorf("decode volcengine properties: %w", err)
		}
	}
	keys.AccessKey = strings.TrimSpace(token)
	keys.SecretKey = strings.TrimSpace(keys.SecretKey)
	if keys.AccessKey == "" || keys.SecretKey == "" {
		return VolcengineKeys{}, false, nil
	}
	return keys, true, nil
}

func (s *Store) SetVolcengineKeys(ctx context.Context, keys VolcengineKeys) error {
	keys.AccessKey = strings.TrimSpace(keys.AccessKey)
	keys.SecretKey = strings.TrimSpace(keys.SecretKey)
	if keys.AccessKey == "" || keys.SecretKey == "" {
		return errors.New("volcengine access key and secret key are required")
	}
	props := map[string]any{"secret_key": keys.SecretKey}
	if r := strings.TrimSpace(keys.Region); r != "" {
		props["region"] = r
	}
	if svc := strings.TrimSpace(keys.Service); svc != "" {
		props["service"] = svc
	}
	return s.upsert(ctx, ProviderVolcengine, keys.AccessKey, props)
}

func (s *Store) DeleteVolcengineKeys(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, ProviderVolcengine)
	return err
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
