package scopedupload

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Algorithm names a token signing algorithm understood by the gateway.
type Algorithm string

const (
	AlgorithmNone  Algorithm = "none"
	AlgorithmHS256 Algorithm = "HS256"
	AlgorithmHS384 Algorithm = "HS384"
	AlgorithmHS512 Algorithm = "HS512"
	AlgorithmRS256 Algorithm = "RS256"
	AlgorithmRS384 Algorithm = "RS384"
	AlgorithmRS512 Algorithm = "RS512"
	AlgorithmES256 Algorithm = "ES256"
	AlgorithmES384 Algorithm = "ES384"
	AlgorithmES512 Algorithm = "ES512"
	AlgorithmPS256 Algorithm = "PS256"
	AlgorithmPS384 Algorithm = "PS384"
	AlgorithmPS512 Algorithm = "PS512"
)

var algorithms = []Algorithm{
	AlgorithmNone,
	AlgorithmHS256, AlgorithmHS384, AlgorithmHS512,
	AlgorithmRS256, AlgorithmRS384, AlgorithmRS512,
	AlgorithmES256, AlgorithmES384, AlgorithmES512,
	AlgorithmPS256, AlgorithmPS384, AlgorithmPS512,
}

// ParseAlgorithm resolves an algorithm name case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, alg := range algorithms {
		if strings.EqualFold(string(alg), strings.TrimSpace(s)) {
			return alg, nil
		}
	}
	return "", fmt.Errorf("unsupported signing algorithm: %q", s)
}

// Scope selects which single permission a token grants.
type Scope int

const (
	// ScopeUpload grants POST on /file/<path>.
	ScopeUpload Scope = iota
	// ScopeRetrieve grants GET on /api/image/<path> with the default query constraints.
	ScopeRetrieve
)

func (s Scope) String() string {
	switch s {
	case ScopeUpload:
		return "upload"
	case ScopeRetrieve:
		return "retrieve"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// GatewayConfig describes the gateway a batch talks to. It is read-only for
// the duration of a batch.
type GatewayConfig struct {
	Endpoint           string    `json:"endpoint" yaml:"endpoint"`
	BasePath           string    `json:"base_path" yaml:"base_path"`
	SigningSecret      string    `json:"signing_secret" yaml:"signing_secret"`
	SigningAlgorithm   Algorithm `json:"signing_algorithm" yaml:"signing_algorithm"`
	TokenIssuer        string    `json:"token_issuer" yaml:"token_issuer"`
	DefaultQueryParams string    `json:"default_query_params" yaml:"default_query_params"`
}

// Validate reports ErrConfigMissing when the config cannot address a gateway.
func (c *GatewayConfig) Validate() error {
	if c == nil {
		return newError(KindConfigMissing, "", "gateway config is required", nil)
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return newError(KindConfigMissing, "", "gateway endpoint is required", nil)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return newError(KindConfigMissing, "", fmt.Sprintf("invalid gateway endpoint %q", c.Endpoint), err)
	}
	if c.SigningAlgorithm == "" {
		return newError(KindConfigMissing, "", "signing algorithm is required", nil)
	}
	alg, err := ParseAlgorithm(string(c.SigningAlgorithm))
	if err != nil {
		return newError(KindConfigMissing, "", err.Error(), err)
	}
	if alg != AlgorithmNone && strings.TrimSpace(c.SigningSecret) == "" {
		return newError(KindConfigMissing, "", fmt.Sprintf("signing secret is required for %s", alg), nil)
	}
	if _, err := url.ParseQuery(c.DefaultQueryParams); err != nil {
		return newError(KindConfigMissing, "", "invalid default query params", err)
	}
	return nil
}

// Normalize returns a copy with the base path canonicalized and the endpoint's
// trailing slash removed.
func (c GatewayConfig) Normalize() GatewayConfig {
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	c.BasePath = CanonicalPath(c.BasePath)
	if alg, err := ParseAlgorithm(string(c.SigningAlgorithm)); err == nil {
		c.SigningAlgorithm = alg
	}
	return c
}

// DefaultQuery parses DefaultQueryParams into a key to value mapping. When a
// key repeats, the first value wins.
func (c GatewayConfig) DefaultQuery() map[string]string {
	values, err := url.ParseQuery(c.DefaultQueryParams)
	if err != nil || len(values) == 0 {
		return nil
	}
	query := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			query[k] = v[0]
		} else {
			query[k] = ""
		}
	}
	return query
}

// UploadItem is one entry of a batch. The orchestrator mutates it in place:
// on success Buffer and Base64 are cleared and RetrievalURL is set.
type UploadItem struct {
	FileName     string
	Buffer       []byte
	Base64       string
	RetrievalURL string
}

func (i *UploadItem) hasPayload() bool {
	return len(i.Buffer) > 0 || i.Base64 != ""
}

// Permission is the single capability embedded in a token.
type Permission struct {
	Path    string            `json:"path"`
	Methods []string          `json:"methods"`
	Query   map[string]string `json:"query,omitempty"`
}

// MarshalJSON keeps the query field whenever Query is non-nil, even if empty,
// so a read permission always carries its constraint set.
func (p Permission) MarshalJSON() ([]byte, error) {
	type wire struct {
		Path    string             `json:"path"`
		Methods []string           `json:"methods"`
		Query   *map[string]string `json:"query,omitempty"`
	}
	w := wire{Path: p.Path, Methods: p.Methods}
	if p.Query != nil {
		w.Query = &p.Query
	}
	return json.Marshal(w)
}

// TokenPayload is the signed body of a token. Permissions always holds exactly
// one entry.
type TokenPayload struct {
	Issuer      string       `json:"iss"`
	IssuedAt    int64        `json:"iat"`
	NotBefore   int64        `json:"nbf"`
	Permissions []Permission `json:"permissions"`
}

// FilePart is the multipart file field of an upload request.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     []byte
}

// UploadRequest describes an upload call without performing it.
type UploadRequest struct {
	Method string
	URL    string
	Header http.Header
	File   FilePart
}

// Response is what a Transport returns for an executed request.
type Response struct {
	StatusCode int
	Body       []byte
}

// ItemStatus is the terminal state of a processed item.
type ItemStatus string

const (
	ItemUploaded ItemStatus = "uploaded"
	ItemSkipped  ItemStatus = "skipped"
	ItemFailed   ItemStatus = "failed"
)

// ItemResult reports what happened to one item of a batch.
type ItemResult struct {
	Index        int
	FileName     string
	Status       ItemStatus
	RetrievalURL string
	Err          error
}
