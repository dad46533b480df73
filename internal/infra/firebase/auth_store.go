package firebase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Auth store (implements port.AuthStore)
// ============================================================
//
// Users are stored under authUsers keyed by user ID, with an index query
// on nationalId for login. Refresh tokens are keyed by their sha256 hash
// so the raw token never appears in the database.

// GetUserByID reads a user record.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetUserByID")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var user *domain.User

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var u domain.User
			found, err := c.get(ctx, "authUsers/"+userID, nil, &u)
			if err != nil {
				return err
			}
			if !found {
				return &domain.ErrNotFound{Resource: "user", ID: userID}
			}
			if u.ID == "" {
				u.ID = userID
			}
			user = &u
			return nil
		})
	})

	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "firebase/authUsers", Err: err}
	}

	return user, nil
}

// GetUserByNationalID looks a user up by national ID via an indexed query.
func (c *Client) GetUserByNationalID(ctx context.Context, nationalID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetUserByNationalID")
	defer span.End()

	query := url.Values{}
	query.Set("orderBy", orderBy("nationalId"))
	query.Set("equalTo", fmt.Sprintf("%q", nationalID))

	var user *domain.User

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.User{}
			found, err := c.get(ctx, "authUsers", query, &nodes)
			if err != nil {
				return err
			}
			if !found || len(nodes) == 0 {
				return &domain.ErrNotFound{Resource: "user", ID: nationalID}
			}
			for id, u := range nodes {
				if u.ID == "" {
					u.ID = id
				}
				user = &u
				break
			}
			return nil
		})
	})

	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "firebase/authUsers", Err: err}
	}

	return user, nil
}

// UpdateUser applies a partial update to a user record.
func (c *Client) UpdateUser(ctx context.Context, userID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Firebase.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, "authUsers/"+userID, updates)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/authUsers", Err: err}
	}
	return nil
}

// StoreRefreshToken writes a hashed refresh token.
func (c *Client) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Firebase.StoreRefreshToken")
	defer span.End()

	rt := domain.RefreshToken{
		Hash:      tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Revoked:   false,
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, "refreshTokens/"+tokenHash, &rt)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/refreshTokens", Err: err}
	}
	return nil
}

// GetRefreshToken reads a stored refresh token by its hash.
func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetRefreshToken")
	defer span.End()

	var token *domain.RefreshToken

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var rt domain.RefreshToken
			found, err := c.get(ctx, "refreshTokens/"+tokenHash, nil, &rt)
			if err != nil {
				return err
			}
			if !found {
				return &domain.ErrNotFound{Resource: "refresh token", ID: tokenHash}
			}
			token = &rt
			return nil
		})
	})

	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "firebase/refreshTokens", Err: err}
	}

	return token, nil
}

// RevokeRefreshToken marks a token revoked. Revoked tokens are kept so a
// replay of a rotated token is detectable.
func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, span := tracer.Start(ctx, "Firebase.RevokeRefreshToken")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, "refreshTokens/"+tokenHash, map[string]any{"revoked": true})
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/refreshTokens", Err: err}
	}
	return nil
}

// StoreOTPChallenge writes an issued OTP challenge.
func (c *Client) StoreOTPChallenge(ctx context.Context, ch *domain.OTPChallenge) error {
	ctx, span := tracer.Start(ctx, "Firebase.StoreOTPChallenge")
	defer span.End()
	span.SetAttributes(attribute.String("challenge.id", ch.ID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, "otpChallenges/"+ch.ID, ch)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/otpChallenges", Err: err}
	}
	return nil
}

// GetOTPChallenge returns the newest live challenge for a user and purpose.
// Consumed and expired challenges are skipped.
func (c *Client) GetOTPChallenge(ctx context.Context, userID, purpose string) (*domain.OTPChallenge, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetOTPChallenge")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	query := url.Values{}
	query.Set("orderBy", orderBy("userId"))
	query.Set("equalTo", fmt.Sprintf("%q", userID))

	var challenge *domain.OTPChallenge

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.OTPChallenge{}
			found, err := c.get(ctx, "otpChallenges", query, &nodes)
			if err != nil {
				return err
			}
			challenge = nil
			if !found {
				return nil
			}
			now := time.Now()
			for id, ch := range nodes {
				if ch.Purpose != purpose || ch.Consumed || now.After(ch.ExpiresAt) {
					continue
				}
				if ch.ID == "" {
					ch.ID = id
				}
				if challenge == nil || ch.ExpiresAt.After(challenge.ExpiresAt) {
					cp := ch
					challenge = &cp
				}
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "firebase/otpChallenges", Err: err}
	}
	if challenge == nil {
		return nil, &domain.ErrNotFound{Resource: "otp challenge", ID: userID}
	}

	return challenge, nil
}

// ConsumeOTPChallenge marks a challenge used. Single use is enforced here,
// not client-side.
func (c *Client) ConsumeOTPChallenge(ctx context.Context, challengeID string) error {
	ctx, span := tracer.Start(ctx, "Firebase.ConsumeOTPChallenge")
	defer span.End()
	span.SetAttributes(attribute.String("challenge.id", challengeID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, "otpChallenges/"+challengeID, map[string]any{"consumed": true})
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/otpChallenges", Err: err}
	}
	return nil
}
