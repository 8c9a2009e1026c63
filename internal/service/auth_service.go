package service

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/staffhub/notifications/internal/domain"
)

// AuthService resolves bearer tokens to receivers and checks publisher keys
type AuthService struct {
	jwtSecret        []byte
	publisherKeyHash []byte
}

// NewAuthService creates a new auth service. An empty publisherKeyHash
// rejects every publisher key.
func NewAuthService(jwtSecret, publisherKeyHash string) *AuthService {
	return &AuthService{
		jwtSecret:        []byte(jwtSecret),
		publisherKeyHash: []byte(publisherKeyHash),
	}
}

// TokenResponse is returned when a token is issued
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// GenerateToken issues a token for a receiver. Sessions are normally issued
// by the identity module; this is used by tooling and tests.
func (s *AuthService) GenerateToken(receiver domain.Receiver, ttl time.Duration) (*TokenResponse, error) {
	if err := validateReceiver(receiver); err != nil {
		return nil, err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"receiver_id":   receiver.ID,
		"receiver_type": string(receiver.Type),
		"exp":           now.Add(ttl).Unix(),
		"iat":           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	}, nil
}

// ValidateToken validates a JWT token and returns the receiver it was issued for
func (s *AuthService) ValidateToken(tokenString string) (domain.Receiver, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return s.jwtSecret, nil
	})

	if err != nil || !token.Valid {
		return domain.Receiver{}, ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Receiver{}, ErrInvalidCredentials
	}

	id, _ := claims["receiver_id"].(string)
	kind, _ := claims["receiver_type"].(string)

	receiver := domain.Receiver{ID: id, Type: domain.ReceiverType(kind)}
	if validateReceiver(receiver) != nil {
		return domain.Receiver{}, ErrInvalidCredentials
	}

	return receiver, nil
}

// ValidatePublisherKey checks the API key business modules publish events with
func (s *AuthService) ValidatePublisherKey(apiKey string) error {
	if len(s.publisherKeyHash) == 0 || apiKey == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.publisherKeyHash, []byte(apiKey)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashAPIKey creates a bcrypt hash of an API key
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateAPIKey generates a random API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
