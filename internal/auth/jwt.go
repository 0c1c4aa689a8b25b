package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"asset-lending-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretLength = 32

// Claims represents the JWT claims structure. The user id travels in sub.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// HasRole checks if the token carries any of the required roles
func (c *Claims) HasRole(requiredRoles ...models.Role) bool {
	for _, required := range requiredRoles {
		if c.Role == required {
			return true
		}
	}
	return false
}

// IsExpiringSoon reports whether the token expires within d
func (c *Claims) IsExpiringSoon(d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(c.ExpiresAt.Time) <= d
}

// JWTManager handles JWT operations
type JWTManager struct {
	secret   string
	issuer   string
	audience string
	expiry   time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret, issuer, audience string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
	}
}

// ValidateConfig rejects settings that would produce unverifiable tokens
func (j *JWTManager) ValidateConfig() error {
	if j.secret == "" {
		return errors.New("JWT secret cannot be empty")
	}
	if len(j.secret) < minSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters", minSecretLength)
	}
	if j.issuer == "" {
		return errors.New("JWT issuer cannot be empty")
	}
	if j.audience == "" {
		return errors.New("JWT audience cannot be empty")
	}
	if j.expiry <= 0 {
		return errors.New("JWT expiry must be positive")
	}
	return nil
}

// GenerateToken creates a new JWT token
func (j *JWTManager) GenerateToken(userID int64, role models.Role) (string, error) {
	if userID <= 0 {
		return "", errors.New("user ID must be positive")
	}
	parsed, ok := models.ParseRole(string(role))
	if !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := time.Now()
	claims := &Claims{
		Role: parsed,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Audience:  []string{j.audience},
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secret))
}

// ValidateToken validates and parses a JWT token
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secret), nil
	}, jwt.WithIssuer(j.issuer), jwt.WithAudience(j.audience))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	role, ok := models.ParseRole(string(claims.Role))
	if !ok {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	claims.Role = role
	return claims, nil
}
