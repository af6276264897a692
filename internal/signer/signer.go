package signer

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"garden-relay/internal/types"
)

// TokenTTL - срок жизни подписанного токена
const TokenTTL = 60 * time.Second

// DefaultScope - фиксированный набор возможностей, которые relay запрашивает у платформы
var DefaultScope = []string{
	"meeting:create",
	"meeting:read",
	"meeting:write",
	"participant:create",
	"participant:read",
	"participant:write",
}

// SigningIdentity - неизменяемые реквизиты клиента видеоплатформы
type SigningIdentity struct {
	ClientID      string
	PrivateKey    *rsa.PrivateKey
	TokenEndpoint string
}

// AccessToken - одноразовый подписанный токен
type AccessToken struct {
	Raw       string
	ID        string
	Issuer    string
	Subject   string
	Audience  string
	Scope     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims - набор claims, которые подписывает relay
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenEndpoint возвращает адрес OAuth token endpoint для базового адреса API
func TokenEndpoint(apiAddress string) string {
	return strings.TrimRight(apiAddress, "/") + "/oauth/token"
}

// LoadIdentity читает приватный ключ и собирает SigningIdentity.
// Любая проблема с ключом - ConfigurationError.
func LoadIdentity(clientID, privateKeyPath, apiAddress string) (*SigningIdentity, error) {
	if clientID == "" {
		return nil, &types.ConfigurationError{Field: "upstream.client_id", Err: errors.New("required")}
	}
	if apiAddress == "" {
		return nil, &types.ConfigurationError{Field: "upstream.api_address", Err: errors.New("required")}
	}

	pemBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "upstream.private_key_path", Err: err}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &types.ConfigurationError{
			Field: "upstream.private_key_path",
			Err:   fmt.Errorf("parse private key %s: %w", privateKeyPath, err),
		}
	}

	return &SigningIdentity{
		ClientID:      clientID,
		PrivateKey:    key,
		TokenEndpoint: TokenEndpoint(apiAddress),
	}, nil
}

// Signer выпускает свежий токен на каждый вызов
type Signer struct {
	identity *SigningIdentity
	scope    []string
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
}

// New создает Signer с фиксированным набором scope
func New(identity *SigningIdentity) (*Signer, error) {
	if identity == nil || identity.PrivateKey == nil {
		return nil, &types.ConfigurationError{Field: "signing identity", Err: errors.New("private key is not loaded")}
	}

	scope := make([]string, len(DefaultScope))
	copy(scope, DefaultScope)

	return &Signer{
		identity: identity,
		scope:    scope,
		ttl:      TokenTTL,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// IssueToken подписывает новый токен RS384. Токены не кэшируются.
func (s *Signer) IssueToken() (*AccessToken, error) {
	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	id := s.newID()

	claims := Claims{
		Scope: strings.Join(s.scope, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.identity.ClientID,
			Subject:   s.identity.ClientID,
			Audience:  jwt.ClaimStrings{s.identity.TokenEndpoint},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        id,
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS384, claims).SignedString(s.identity.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	scope := make([]string, len(s.scope))
	copy(scope, s.scope)

	return &AccessToken{
		Raw:       raw,
		ID:        id,
		Issuer:    s.identity.ClientID,
		Subject:   s.identity.ClientID,
		Audience:  s.identity.TokenEndpoint,
		Scope:     scope,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
