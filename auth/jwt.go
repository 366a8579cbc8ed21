package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/redis/go-redis/v9"
)

var ErrRevoked = errors.New("token has been signed out")

// Claims are the fields the auth service puts in its HS256 tokens. The subject is the user id.
type Claims struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	BranchId int    `json:"branch_id"`
	jwt.StandardClaims
}

func SignToken(secret []byte, user User, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Name:     user.Name,
		Role:     user.Role,
		BranchId: user.BranchId,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	})
	return t.SignedString(secret)
}

type Denylist interface {
	Revoked(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// RedisDenylist stores a hash of each signed-out token until the token would have expired.
type RedisDenylist struct {
	Client *redis.Client
	Prefix string
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{Client: client, Prefix: "auth:revoked:"}
}

func (d *RedisDenylist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return d.Prefix + hex.EncodeToString(sum[:])
}

func (d *RedisDenylist) Revoked(ctx context.Context, token string) (bool, error) {
	if d == nil || d.Client == nil {
		return false, nil
	}
	n, err := d.Client.Exists(ctx, d.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDenylist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if d == nil || d.Client == nil {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return d.Client.Set(ctx, d.key(token), "1", ttl).Err()
}

// JWTVerifier validates tokens locally with the shared secret and consults the denylist.
type JWTVerifier struct {
	Secret   []byte
	Denylist Denylist
}

func NewJWTVerifier(secret string, denylist Denylist) *JWTVerifier {
	return &JWTVerifier{Secret: []byte(secret), Denylist: denylist}
}

func (v *JWTVerifier) parse(token string) (*Claims, error) {
	if len(v.Secret) == 0 {
		return nil, errors.New("auth secret is not configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*User, error) {
	claims, err := v.parse(token)
	if err != nil {
		return nil, err
	}
	if v.Denylist != nil {
		revoked, err := v.Denylist.Revoked(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}
	return &User{ID: claims.Subject, Name: claims.Name, Role: claims.Role, BranchId: claims.BranchId}, nil
}

// SignOut denylists token for the rest of its lifetime.
func (v *JWTVerifier) SignOut(ctx context.Context, token string) error {
	claims, err := v.parse(token)
	if err != nil {
		return err
	}
	if v.Denylist == nil {
		return nil
	}
	ttl := time.Until(time.Unix(claims.ExpiresAt, 0))
	if claims.ExpiresAt == 0 {
		ttl = 24 * time.Hour
	}
	return v.Denylist.Revoke(ctx, token, ttl)
}
