package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"service-queue/internal/status"
	"service-queue/models"
	"service-queue/security"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultJoinExpiry = 60 * time.Minute
	joinTokenPurpose  = "queue-join-token"
)

// JoinClaims is the payload carried by a QR join code.
type JoinClaims struct {
	LocationID    string  `json:"loc"`
	ServiceTypeID *string `json:"svc,omitempty"`
	jwt.RegisteredClaims
}

type JoinConfig struct {
	Secret  []byte
	BaseURL string
	// Limiter throttles redemptions per customer. Optional.
	Limiter Limiter
	Logger  *slog.Logger
}

// JoinService issues signed join tokens for QR codes and redeems them into
// queue entries. Rendering the code image is left to the caller.
type JoinService struct {
	queue   *QueueService
	key     []byte
	baseURL string
	limiter Limiter
	logger  *slog.Logger
}

func NewJoinService(queue *QueueService, cfg JoinConfig) (*JoinService, error) {
	key, err := security.DeriveKey(cfg.Secret, joinTokenPurpose)
	if err != nil {
		return nil, fmt.Errorf("join token key: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &JoinService{
		queue:   queue,
		key:     key,
		baseURL: cfg.BaseURL,
		limiter: cfg.Limiter,
		logger:  cfg.Logger.With("service", "join"),
	}, nil
}

// CreateJoinToken signs a token for locationID valid for expiryMinutes
// (60 when not positive).
func (j *JoinService) CreateJoinToken(ctx context.Context, locationID string, serviceTypeID *string, expiryMinutes int) (models.JoinToken, error) {
	locationID, err := ParseLocationID(locationID)
	if err != nil {
		return models.JoinToken{}, err
	}
	if _, err := j.queue.locations.GetLocation(ctx, locationID); err != nil {
		return models.JoinToken{}, fmt.Errorf("get location %s: %w", locationID, err)
	}

	expiry := DefaultJoinExpiry
	if expiryMinutes > 0 {
		expiry = time.Duration(expiryMinutes) * time.Minute
	}
	now := j.queue.clock.Now()
	// NumericDate carries whole seconds; round up so the token never
	// expires before the promised lifetime
	expiresAt := now.Add(expiry + time.Second - 1).Truncate(time.Second)

	claims := JoinClaims{
		LocationID:    locationID,
		ServiceTypeID: serviceTypeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	payload, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
	if err != nil {
		return models.JoinToken{}, fmt.Errorf("sign join token: %w", err)
	}

	j.logger.Info("join token issued", "location_id", locationID, "expires_at", expiresAt)
	return models.JoinToken{
		Payload:   payload,
		JoinURL:   j.baseURL + "?token=" + url.QueryEscape(payload),
		ExpiresAt: expiresAt,
	}, nil
}

// ParseJoinToken verifies the signature of payload and returns its claims.
// Expiry is not checked here.
func (j *JoinService) ParseJoinToken(payload string) (*JoinClaims, error) {
	claims := &JoinClaims{}
	_, err := jwt.ParseWithClaims(payload, claims, func(token *jwt.Token) (any, error) {
		return j.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrInvalidToken, err)
	}
	if claims.LocationID == "" || claims.ExpiresAt == nil {
		return nil, status.ErrInvalidToken
	}
	return claims, nil
}

// Redeem joins customerID to the queue named by payload.
func (j *JoinService) Redeem(ctx context.Context, payload, customerID string) (models.QueueEntry, error) {
	if customerID == "" {
		return models.QueueEntry{}, status.NewValidationError("customer_id", "is required")
	}

	claims, err := j.ParseJoinToken(payload)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if j.queue.clock.Now().After(claims.ExpiresAt.Time) {
		return models.QueueEntry{}, status.ErrExpiredToken
	}

	if j.limiter != nil {
		ok, err := j.limiter.Allow(ctx, customerID)
		if err != nil {
			return models.QueueEntry{}, err
		}
		if !ok {
			return models.QueueEntry{}, status.ErrRateLimited
		}
	}

	entry, err := j.queue.Join(ctx, claims.LocationID, customerID, claims.ServiceTypeID)
	if err != nil {
		j.logger.Debug("join token redemption failed", "location_id", claims.LocationID, "error", err)
		return models.QueueEntry{}, err
	}
	return entry, nil
}
