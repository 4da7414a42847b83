package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/repositories"
	"github.com/mediqo/clinisync/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid device or enrollment key")
	ErrDeviceRevoked      = errors.New("device has been revoked")
	ErrFacilityNotFound   = errors.New("facility not found")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthService resolves facility devices into sync actors. Every issued token
// is pinned to one (tenant, facility, device) scope; sync calls carry no
// other identity.
type AuthService struct {
	deviceRepo   repositories.DeviceRepository
	facilityRepo repositories.FacilityRepository
	sessionRepo  repositories.SessionRepository
	jwtSecret    string
	jwtExpiry    time.Duration
}

func NewAuthService(
	deviceRepo repositories.DeviceRepository,
	facilityRepo repositories.FacilityRepository,
	sessionRepo repositories.SessionRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
) *AuthService {
	return &AuthService{
		deviceRepo:   deviceRepo,
		facilityRepo: facilityRepo,
		sessionRepo:  sessionRepo,
		jwtSecret:    jwtSecret,
		jwtExpiry:    jwtExpiry,
	}
}

type EnrollRequest struct {
	FacilityID    uuid.UUID
	Name          string
	EnrollmentKey string
	Role          models.Role
}

func (s *AuthService) EnrollDevice(ctx context.Context, req EnrollRequest) (*models.Device, error) {
	facility, err := s.facilityRepo.GetByID(ctx, req.FacilityID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrFacilityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve facility: %w", err)
	}

	keyHash, err := utils.HashEnrollmentKey(req.EnrollmentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to hash enrollment key: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleDevice
	}

	device := &models.Device{
		TenantID:   facility.TenantID,
		FacilityID: facility.ID,
		Name:       req.Name,
		KeyHash:    keyHash,
		Role:       role,
	}
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

type LoginRequest struct {
	DeviceID      uuid.UUID
	EnrollmentKey string
}

type LoginResponse struct {
	Token     string
	ExpiresAt time.Time
	Actor     models.Actor
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	device, err := s.deviceRepo.GetByID(ctx, req.DeviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if device.RevokedAt != nil {
		return nil, ErrDeviceRevoked
	}
	if !utils.CheckEnrollmentKey(device.KeyHash, req.EnrollmentKey) {
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	expiresAt := time.Now().Add(s.jwtExpiry)
	session := &models.Session{
		ID:         sessionID,
		TenantID:   device.TenantID,
		FacilityID: device.FacilityID,
		DeviceID:   device.ID,
		Role:       device.Role,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(device, sessionID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Actor: models.Actor{
			TenantID:   device.TenantID,
			FacilityID: device.FacilityID,
			DeviceID:   device.ID,
			Role:       device.Role,
			SessionID:  sessionID,
		},
	}, nil
}

func (s *AuthService) generateToken(device *models.Device, sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  device.ID.String(),
		"tid":  device.TenantID.String(),
		"fid":  device.FacilityID.String(),
		"role": string(device.Role),
		"jti":  sessionID,
		"exp":  expiresAt.Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken resolves a bearer token into an Actor. The session must still
// exist: logging out or revoking a device invalidates outstanding tokens
// before they expire.
func (s *AuthService) VerifyToken(ctx context.Context, tokenString string) (*models.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	deviceID, err := claimUUID(claims, "sub")
	if err != nil {
		return nil, ErrInvalidToken
	}
	tenantID, err := claimUUID(claims, "tid")
	if err != nil {
		return nil, ErrInvalidToken
	}
	facilityID, err := claimUUID(claims, "fid")
	if err != nil {
		return nil, ErrInvalidToken
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	sessionID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.DeviceID != deviceID {
		return nil, ErrInvalidToken
	}

	return &models.Actor{
		TenantID:   tenantID,
		FacilityID: facilityID,
		DeviceID:   deviceID,
		Role:       models.Role(roleStr),
		SessionID:  sessionID,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	actor, err := s.VerifyToken(ctx, tokenString)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.Delete(ctx, actor.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RevokeDevice revokes the device and terminates all of its sessions.
func (s *AuthService) RevokeDevice(ctx context.Context, deviceID uuid.UUID) error {
	if err := s.deviceRepo.Revoke(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
	}
	if err := s.sessionRepo.DeleteAllForDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to terminate device sessions: %w", err)
	}
	return nil
}

func claimUUID(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	str, ok := claims[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing claim %q", key)
	}
	return uuid.Parse(str)
}
