// Package gatewaytest provides an in-memory gateway that enforces the
// one-token-one-permission model. It backs integration tests and the
// gateway-dev command.
//
// Only HMAC algorithms (HS256, HS384, HS512) are verified.
package gatewaytest

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwt"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

const (
	maxUploadBytes = 32 << 20

	// Tokens carry nbf == iat == mint time, so a same-second request must pass.
	clockSkew = time.Minute
)

// Object is a stored upload.
type Object struct {
	ID          uuid.UUID
	Path        string
	FileName    string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// UploadResponse is returned with 201 on a successful upload.
type UploadResponse struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int    `json:"size"`
}

// ErrorResponse is the body of every rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Gateway stores uploads in memory, keyed by canonical path.
type Gateway struct {
	auth   *jwtauth.JWTAuth
	logger *slog.Logger

	mu      sync.RWMutex
	objects map[string]*Object
}

// Option configures a Gateway
type Option func(*Gateway)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New creates a gateway verifying tokens signed with secret using alg.
// An empty alg means HS256.
func New(secret string, alg scopedupload.Algorithm, opts ...Option) *Gateway {
	if alg == "" {
		alg = scopedupload.AlgorithmHS256
	}
	g := &Gateway{
		auth:    jwtauth.New(string(alg), []byte(secret), []byte(secret)),
		logger:  slog.Default(),
		objects: make(map[string]*Object),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewServer starts an httptest server in front of a new gateway.
func NewServer(secret string, alg scopedupload.Algorithm, opts ...Option) (*httptest.Server, *Gateway) {
	g := New(secret, alg, opts...)
	return httptest.NewServer(g.Routes()), g
}

// Routes returns the gateway router.
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(g.verifier(jwtauth.TokenFromHeader))
		r.Post("/file/*", g.HandleUpload)
	})

	r.Group(func(r chi.Router) {
		r.Use(g.verifier(tokenFromQuery))
		r.Get("/api/image/*", g.HandleImage)
	})

	return r
}

// verifier decodes the token found by find and stores the result in the
// request context, where jwtauth.FromContext reads it.
func (g *Gateway) verifier(find func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := g.verify(find(r))
			ctx := jwtauth.NewContext(r.Context(), token, err)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gateway) verify(tokenString string) (jwt.Token, error) {
	if tokenString == "" {
		return nil, jwtauth.ErrNoTokenFound
	}
	token, err := g.auth.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if err := jwt.Validate(token, jwt.WithAcceptableSkew(clockSkew)); err != nil {
		return token, err
	}
	return token, nil
}

func tokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("token")
}

// HandleUpload handles POST /file/{path...} with a multipart "file" field.
func (g *Gateway) HandleUpload(w http.ResponseWriter, r *http.Request) {
	key := routeKey(r)
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "path is required")
		return
	}

	if err := g.authorize(r, scopedupload.ScopedPath(scopedupload.ScopeUpload, "", key), http.MethodPost); err != nil {
		g.logger.Info("Upload rejected", "path", key, "err", err)
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile(scopedupload.FileFieldName)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read upload")
		return
	}

	obj := &Object{
		ID:          uuid.New(),
		Path:        key,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	g.mu.Lock()
	g.objects[key] = obj
	g.mu.Unlock()

	g.logger.Info("Object stored", "path", key, "id", obj.ID.String(), "size", len(data))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadResponse{ID: obj.ID.String(), Path: key, Size: len(data)})
}

// HandleImage handles GET /api/image/{path...}?token=... and serves the
// stored bytes when the token's query constraints match the request.
func (g *Gateway) HandleImage(w http.ResponseWriter, r *http.Request) {
	key := routeKey(r)

	if err := g.authorize(r, scopedupload.ScopedPath(scopedupload.ScopeRetrieve, "", key), http.MethodGet); err != nil {
		g.logger.Info("Retrieval rejected", "path", key, "err", err)
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	obj, ok := g.Object(key)
	if !ok {
		writeError(w, r, http.StatusNotFound, "object not found")
		return
	}

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

// Object returns the stored object at a canonical path.
func (g *Gateway) Object(path string) (*Object, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.objects[scopedupload.CanonicalPath(path)]
	return obj, ok
}

// Len returns the number of stored objects.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

// authorize checks that the verified token holds exactly one permission and
// that it covers path, method and, for reads, the request query.
func (g *Gateway) authorize(r *http.Request, path, method string) error {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return fmt.Errorf("bad signature: %v", err)
	}
	if token == nil {
		return fmt.Errorf("bad signature: no token")
	}

	perms, ok := claims["permissions"].([]interface{})
	if !ok || len(perms) != 1 {
		return fmt.Errorf("token must carry exactly one permission")
	}
	perm, ok := perms[0].(map[string]interface{})
	if !ok {
		return fmt.Errorf("malformed permission")
	}

	if perm["path"] != path {
		return fmt.Errorf("permission denied for %s", path)
	}
	if !containsMethod(perm["methods"], method) {
		return fmt.Errorf("method %s not permitted", method)
	}

	if method == http.MethodGet {
		return matchQuery(perm["query"], r.URL.Query())
	}
	return nil
}

func containsMethod(raw interface{}, method string) bool {
	methods, ok := raw.([]interface{})
	if !ok {
		return false
	}
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func matchQuery(raw interface{}, actual url.Values) error {
	if raw == nil {
		return nil
	}
	constraints, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("malformed query constraint")
	}
	for k, v := range constraints {
		if k == "token" {
			continue
		}
		if want, _ := v.(string); actual.Get(k) != want {
			return fmt.Errorf("query parameter %s does not match token", k)
		}
	}
	return nil
}

// routeKey returns the canonical path captured by the trailing wildcard.
func routeKey(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return scopedupload.CanonicalPath(raw)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
