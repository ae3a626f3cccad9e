package scopedupload

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRetrievalURL(t *testing.T) {
	issuer := newTestIssuer(testConfig(), nil)

	raw, err := issuer.BuildRetrievalURL(`photos\cat.png`)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "img.example.com:8443", u.Host)
	assert.Equal(t, "/api/image/blog/2024/photos/cat.png", u.Path)

	q := u.Query()
	assert.Equal(t, "800", q.Get("w"))
	assert.Equal(t, "webp", q.Get("fmt"))
	require.NotEmpty(t, q.Get("token"))

	claims, _ := parseToken(t, q.Get("token"))
	perms := permissionsOf(t, claims)
	require.Len(t, perms, 1)
	assert.Equal(t, "/api/image/blog/2024/photos/cat.png", perms[0].Path)
	assert.Equal(t, []string{"GET"}, perms[0].Methods, "retrieval token must never grant POST")
	assert.Equal(t, map[string]string{"w": "800", "fmt": "webp"}, perms[0].Query)
}

func TestBuildRetrievalURLOverwritesToken(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultQueryParams = "token=stale&w=100"
	issuer := newTestIssuer(cfg, nil)

	raw, err := issuer.BuildRetrievalURL("cat.png")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	tokens := u.Query()["token"]
	require.Len(t, tokens, 1)
	assert.NotEqual(t, "stale", tokens[0])
	assert.True(t, strings.HasPrefix(u.RawQuery, "w=100&token="), u.RawQuery)
}

func TestBuildRetrievalURLKeepsConfiguredQuery(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		prefix string
	}{
		{name: "order and encoding kept", query: "w=800&fmt=webp&q=a%20b", prefix: "w=800&fmt=webp&q=a%20b&token="},
		{name: "repeated keys kept", query: "f=a&f=b", prefix: "f=a&f=b&token="},
		{name: "empty pairs dropped", query: "&w=1&&", prefix: "w=1&token="},
		{name: "encoded token key dropped", query: "%74oken=old&w=1", prefix: "w=1&token="},
		{name: "no defaults", query: "", prefix: "token="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DefaultQueryParams = tt.query
			issuer := newTestIssuer(cfg, nil)

			raw, err := issuer.BuildRetrievalURL("cat.png")
			require.NoError(t, err)

			base, query, ok := strings.Cut(raw, "?")
			require.True(t, ok)
			assert.Equal(t, "https://img.example.com:8443/api/image/blog/2024/cat.png", base)
			require.True(t, strings.HasPrefix(query, tt.prefix), query)

			token := strings.TrimPrefix(query, tt.prefix)
			assert.NotContains(t, token, "&")
			claims, _ := parseToken(t, token)
			require.Len(t, permissionsOf(t, claims), 1)
		})
	}
}

func TestBuildRetrievalURLSignerFailure(t *testing.T) {
	cfg := testConfig()
	cfg.SigningSecret = ""
	issuer := newTestIssuer(cfg, nil)

	_, err := issuer.BuildRetrievalURL("cat.png")
	assert.ErrorIs(t, err, ErrTokenIssuance)
}
