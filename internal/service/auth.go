// Package service — AuthService handles authentication, JWT token
// management and payment OTP challenges.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/format"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	maxFailedAttempts = 5
	lockDuration      = 30 * time.Minute
	bcryptCost        = 12
	otpDigits         = 4
)

// AuthService orchestrates authentication flows.
type AuthService struct {
	store      port.AuthStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	otpTTL     time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.AuthStore, jwtSecret string, accessTTL, refreshTTL, otpTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		otpTTL:     otpTTL,
		logger:     logger,
	}
}

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.store.GetUserByNationalID(ctx, req.NationalID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &domain.ErrUnauthorized{Message: "بيانات الدخول غير صحيحة"}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	// Check if account is locked
	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		remaining := time.Until(*user.LockedUntil).Minutes()
		s.logger.Warn("login: account temporarily locked",
			zap.String("user_id", user.ID),
			zap.Float64("remaining_minutes", remaining),
		)
		return nil, &domain.ErrUnauthorized{
			Message: fmt.Sprintf("الحساب مقفل مؤقتاً. حاول مرة أخرى بعد %.0f دقيقة", remaining),
		}
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		newAttempts := user.FailedAttempts + 1
		updates := map[string]any{"failedAttempts": newAttempts}
		if newAttempts >= maxFailedAttempts {
			lockedUntil := time.Now().Add(lockDuration)
			updates["lockedUntil"] = lockedUntil.Format(time.RFC3339)
			s.logger.Warn("login: account locked after max attempts",
				zap.String("user_id", user.ID),
				zap.Int("attempts", newAttempts),
				zap.Duration("lock_duration", lockDuration),
			)
		} else {
			s.logger.Warn("login: failed password attempt",
				zap.String("user_id", user.ID),
				zap.Int("attempts", newAttempts),
				zap.Int("max", maxFailedAttempts),
			)
		}
		_ = s.store.UpdateUser(ctx, user.ID, updates)

		return nil, &domain.ErrUnauthorized{Message: "بيانات الدخول غير صحيحة"}
	}

	// Reset failed attempts on successful login
	_ = s.store.UpdateUser(ctx, user.ID, map[string]any{
		"failedAttempts": 0,
		"lockedUntil":    nil,
		"lastLoginAt":    time.Now().Format(time.RFC3339),
	})

	// Generate tokens
	accessToken, err := s.signAccessToken(user.ID, user.NationalID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.store.StoreRefreshToken(ctx, user.ID, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       user.ID,
		UserName:     user.Name,
	}, nil
}

// ============================================================
// Refresh — POST /v1/auth/refresh
// ============================================================

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	tokenHash := hashToken(req.RefreshToken)

	stored, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &domain.ErrUnauthorized{Message: "رمز التحديث غير صالح"}
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored.Revoked {
		s.logger.Warn("refresh: revoked token replayed",
			zap.String("user_id", stored.UserID),
		)
		return nil, &domain.ErrUnauthorized{Message: "رمز التحديث غير صالح"}
	}
	if stored.ExpiresAt.Before(time.Now()) {
		s.logger.Warn("refresh: expired token used",
			zap.String("user_id", stored.UserID),
		)
		_ = s.store.RevokeRefreshToken(ctx, tokenHash)
		return nil, &domain.ErrUnauthorized{Message: "انتهت صلاحية رمز التحديث"}
	}

	// Revoke old token (rotation)
	_ = s.store.RevokeRefreshToken(ctx, tokenHash)

	user, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	accessToken, err := s.signAccessToken(user.ID, user.NationalID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	newRefreshToken, newRefreshHash, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.store.StoreRefreshToken(ctx, user.ID, newRefreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       user.ID,
		UserName:     user.Name,
	}, nil
}

// ============================================================
// Logout — POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, req *domain.RefreshRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if req.RefreshToken == "" {
		return nil
	}
	if err := s.store.RevokeRefreshToken(ctx, hashToken(req.RefreshToken)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ============================================================
// Payment OTP
// ============================================================

// RequestPaymentOTP issues a short-lived single-use code for confirming a
// bulk payment. The code is stored bcrypt-hashed; delivery would go out
// through SMS in production.
func (s *AuthService) RequestPaymentOTP(ctx context.Context, userID string) (*domain.OTPRequestResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.RequestPaymentOTP")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	code := generateOTPCode()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}

	ch := &domain.OTPChallenge{
		ID:        uuid.New().String(),
		UserID:    userID,
		CodeHash:  string(hash),
		Purpose:   "payment",
		ExpiresAt: time.Now().Add(s.otpTTL),
	}
	if err := s.store.StoreOTPChallenge(ctx, ch); err != nil {
		return nil, fmt.Errorf("store otp challenge: %w", err)
	}

	// In production, send SMS here
	s.logger.Info("payment OTP issued",
		zap.String("user_id", userID),
		zap.String("code", code), // ONLY in dev — remove in production
	)

	return &domain.OTPRequestResponse{
		ChallengeID: ch.ID,
		ExpiresIn:   int(s.otpTTL.Seconds()),
		MaskedPhone: format.MaskPhone(user.Phone),
	}, nil
}

// ============================================================
// ValidateToken — used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub        string `json:"sub"`
	NationalID string `json:"nationalId"`
	Type       string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "الرمز غير صالح أو منتهي الصلاحية"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "الرمز غير صالح"}
	}

	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "نوع الرمز غير صالح"}
	}

	return claims, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) signAccessToken(userID, nationalID string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:        userID,
		NationalID: nationalID,
		Type:       "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "absher-pay-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) generateRefreshToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	hashed = hashToken(raw)
	return raw, hashed, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateOTPCode() string {
	code := ""
	for i := 0; i < otpDigits; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		code += fmt.Sprintf("%d", n.Int64())
	}
	return code
}

func verifyOTPCode(codeHash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(code)) == nil
}
