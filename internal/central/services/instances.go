package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/klinikos/medsync/internal/central/auth"
	"github.com/klinikos/medsync/internal/central/models"
	"github.com/klinikos/medsync/internal/central/repositories/instances"
	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/logging"
)

const apiSecretBytes = 32

// InstanceService registers clinic installations and exchanges their API
// secrets for short-lived access tokens.
type InstanceService struct {
	repo          instances.Repository
	secretKey     []byte
	tokenValidity time.Duration
	logger        logging.Logger
	now           func() time.Time
}

func NewInstanceService(repo instances.Repository, secretKey []byte, tokenValidity time.Duration, logger logging.Logger) *InstanceService {
	return &InstanceService{
		repo:          repo,
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
		logger:        logger.With("module", "instances"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an instance and returns its API secret. The secret is
// returned exactly once; only its bcrypt hash is stored.
func (s *InstanceService) Register(ctx context.Context, id, name string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: missing instance id", common.ErrValidation)
	}

	secret, err := common.MakeRandHexString(apiSecretBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}

	inst := &models.Instance{
		ID:           id,
		Name:         name,
		SecretHash:   string(hash),
		RegisteredAt: s.now(),
	}
	if err := s.repo.Create(ctx, inst); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "instance registered", "instance", id)
	return secret, nil
}

// IssueToken validates the API secret and mints an access token.
func (s *InstanceService) IssueToken(ctx context.Context, id, apiSecret string) (string, time.Time, error) {
	inst, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", time.Time{}, common.ErrUnauthorized
		}
		return "", time.Time{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(inst.SecretHash), []byte(apiSecret)); err != nil {
		return "", time.Time{}, common.ErrUnauthorized
	}

	expiresAt := s.now().Add(s.tokenValidity)
	token, err := auth.GenerateToken(id, s.secretKey, s.tokenValidity)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.repo.UpdateLastSeen(ctx, id, s.now()); err != nil {
		s.logger.Warn(ctx, "failed to update last seen", "instance", id, "error", err)
	}

	return token, expiresAt, nil
}
