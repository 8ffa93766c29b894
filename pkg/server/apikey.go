package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/storage"
)

// apiKeyHeader carries the device API key on POST /api/data.
const apiKeyHeader = "Device-API-Key"

type apiKeyRecord struct {
	Encrypted []byte    `json:"encrypted"`
	CreatedAt time.Time `json:"createdAt"`
}

type apiKeyResponse struct {
	APIKey    string    `json:"apiKey"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// getAPIKey returns the decrypted device API key, or an empty string if none
// was generated yet.
func (s *Server) getAPIKey(ctx context.Context) (string, time.Time, error) {
	var rec apiKeyRecord
	if err := s.storage.Get(ctx, storage.APIKeyPath, &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, fmt.Errorf("failed to get api key: %w", err)
	}
	if len(rec.Encrypted) == 0 {
		return "", time.Time{}, nil
	}
	key, err := s.decrypt(ctx, rec.Encrypted)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return string(key), rec.CreatedAt, nil
}

// rotateAPIKey generates a new device API key and stores it encrypted.
func (s *Server) rotateAPIKey(ctx context.Context) (string, time.Time, error) {
	key := uuid.NewString()
	encrypted, err := s.encrypt(ctx, []byte(key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to encrypt api key: %w", err)
	}
	rec := apiKeyRecord{
		Encrypted: encrypted,
		CreatedAt: s.now().UTC(),
	}
	if err := s.storage.Set(ctx, storage.APIKeyPath, rec); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to save api key: %w", err)
	}
	return key, rec.CreatedAt, nil
}

// checkAPIKey reports whether the request carries the stored device key.
// Requests are rejected while no key exists.
func (s *Server) checkAPIKey(r *http.Request) (bool, error) {
	got := r.Header.Get(apiKeyHeader)
	if got == "" {
		return false, nil
	}
	want, _, err := s.getAPIKey(r.Context())
	if err != nil {
		return false, err
	}
	if want == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1, nil
}

func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireAdmin(w, r) {
		return
	}
	key, createdAt, err := s.getAPIKey(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get api key", slog.Any("error", err))
		writeJSONError(w, "failed to get api key", http.StatusInternalServerError)
		return
	}
	writeJSON(w, apiKeyResponse{APIKey: key, CreatedAt: createdAt})
}

func (s *Server) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireAdmin(w, r) {
		return
	}
	key, createdAt, err := s.rotateAPIKey(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to rotate api key", slog.Any("error", err))
		writeJSONError(w, "failed to rotate api key", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "rotated device api key", slog.String("email", s.getUser(r).Email))
	writeJSON(w, apiKeyResponse{APIKey: key, CreatedAt: createdAt})
}
