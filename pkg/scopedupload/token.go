package scopedupload

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer turns a token payload into a signed token string.
type Signer interface {
	Sign(payload TokenPayload, secret string, alg Algorithm) (string, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(payload TokenPayload, secret string, alg Algorithm) (string, error)

func (f SignerFunc) Sign(payload TokenPayload, secret string, alg Algorithm) (string, error) {
	return f(payload, secret, alg)
}

// JWTSigner signs payloads as compact JWTs with header {alg, typ: "JWT"}.
//
// The secret is interpreted per algorithm family: raw bytes for HS*, a PEM
// encoded RSA private key for RS* and PS*, a PEM encoded EC private key for
// ES*. It is ignored for none.
type JWTSigner struct{}

// NewJWTSigner returns the default signer.
func NewJWTSigner() *JWTSigner {
	return &JWTSigner{}
}

func (s *JWTSigner) Sign(payload TokenPayload, secret string, alg Algorithm) (string, error) {
	method := jwt.GetSigningMethod(string(alg))
	if method == nil {
		return "", fmt.Errorf("sign token: unsupported algorithm %q", alg)
	}

	key, err := signingKey(alg, secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	claims := jwt.MapClaims{
		"iss":         payload.Issuer,
		"iat":         payload.IssuedAt,
		"nbf":         payload.NotBefore,
		"permissions": payload.Permissions,
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func signingKey(alg Algorithm, secret string) (interface{}, error) {
	switch alg {
	case AlgorithmNone:
		return jwt.UnsafeAllowNoneSignatureType, nil
	case AlgorithmHS256, AlgorithmHS384, AlgorithmHS512:
		if secret == "" {
			return nil, errors.New("empty HMAC secret")
		}
		return []byte(secret), nil
	case AlgorithmRS256, AlgorithmRS384, AlgorithmRS512,
		AlgorithmPS256, AlgorithmPS384, AlgorithmPS512:
		return jwt.ParseRSAPrivateKeyFromPEM([]byte(secret))
	case AlgorithmES256, AlgorithmES384, AlgorithmES512:
		return jwt.ParseECPrivateKeyFromPEM([]byte(secret))
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// TokenIssuer mints single-permission tokens for one gateway config.
type TokenIssuer struct {
	cfg    GatewayConfig
	signer Signer
	logger *slog.Logger

	// Now is the clock used for iat and nbf.
	Now func() time.Time
}

// NewTokenIssuer creates an issuer. A nil signer falls back to JWTSigner.
func NewTokenIssuer(cfg GatewayConfig, signer Signer) *TokenIssuer {
	if signer == nil {
		signer = NewJWTSigner()
	}
	return &TokenIssuer{
		cfg:    cfg.Normalize(),
		signer: signer,
		logger: slog.Default(),
		Now:    time.Now,
	}
}

// Payload builds the unsigned payload for itemPath under scope.
func (t *TokenIssuer) Payload(itemPath string, scope Scope) TokenPayload {
	perm := Permission{
		Path:    ScopedPath(scope, t.cfg.BasePath, itemPath),
		Methods: []string{http.MethodPost},
	}
	if scope == ScopeRetrieve {
		perm.Methods = []string{http.MethodGet}
		perm.Query = t.cfg.DefaultQuery()
		if perm.Query == nil {
			perm.Query = map[string]string{}
		}
	}

	now := t.Now().Unix()
	return TokenPayload{
		Issuer:      t.cfg.TokenIssuer,
		IssuedAt:    now,
		NotBefore:   now,
		Permissions: []Permission{perm},
	}
}

// Issue signs a token for itemPath under scope, returning the signing error
// wrapped as ErrTokenIssuance.
func (t *TokenIssuer) Issue(itemPath string, scope Scope) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			token, err = "", fmt.Errorf("signer panicked: %v", r)
		}
		if err != nil {
			err = newError(KindTokenIssuance, itemPath, "token issuance failed", err)
		}
	}()

	token, err = t.signer.Sign(t.Payload(itemPath, scope), t.cfg.SigningSecret, t.cfg.SigningAlgorithm)
	if err == nil && token == "" {
		err = errors.New("signer returned an empty token")
	}
	return token, err
}

// IssueToken returns a signed token, or "" when signing fails. It never
// returns the underlying error; callers treat "" as "cannot proceed".
func (t *TokenIssuer) IssueToken(itemPath string, scope Scope) string {
	token, err := t.Issue(itemPath, scope)
	if err != nil {
		t.logger.Debug("Token issuance failed", "path", itemPath, "scope", scope.String(), "err", err)
		return ""
	}
	return token
}
