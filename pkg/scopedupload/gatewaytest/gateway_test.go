package gatewaytest

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

const secret = "gateway-test-secret"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUploader(t *testing.T, endpoint, signingSecret string, opts ...scopedupload.Option) *scopedupload.Uploader {
	t.Helper()
	opts = append([]scopedupload.Option{scopedupload.WithLogger(quietLogger())}, opts...)
	u, err := scopedupload.New(&scopedupload.GatewayConfig{
		Endpoint:           endpoint,
		BasePath:           `/site\uploads/`,
		SigningSecret:      signingSecret,
		SigningAlgorithm:   scopedupload.AlgorithmHS256,
		TokenIssuer:        "gatewaytest",
		DefaultQueryParams: "w=320&fmt=webp",
	}, opts...)
	require.NoError(t, err)
	return u
}

func TestUploadAndRetrieve(t *testing.T) {
	server, gw := NewServer(secret, "", WithLogger(quietLogger()))
	defer server.Close()

	u := newUploader(t, server.URL, secret)
	items := []*scopedupload.UploadItem{
		{FileName: "cat.png", Buffer: []byte("cat-bytes")},
		{FileName: `albums\my dog.jpg`, Base64: base64.StdEncoding.EncodeToString([]byte("dog-bytes"))},
	}

	_, err := u.UploadAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 2, gw.Len())

	obj, ok := gw.Object("site/uploads/albums/my dog.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("dog-bytes"), obj.Data)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	for _, item := range items {
		resp, err := http.Get(item.RetrievalURL)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	resp, err := http.Get(items[0].RetrievalURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "cat-bytes", string(body))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestRetrievalTokenIsScoped(t *testing.T) {
	server, _ := NewServer(secret, "", WithLogger(quietLogger()))
	defer server.Close()

	u := newUploader(t, server.URL, secret)
	items := []*scopedupload.UploadItem{
		{FileName: "a.png", Buffer: []byte("a")},
		{FileName: "b.png", Buffer: []byte("b")},
	}
	_, err := u.UploadAll(context.Background(), items)
	require.NoError(t, err)

	t.Run("token for one path does not open another", func(t *testing.T) {
		swapped := strings.Replace(items[0].RetrievalURL, "/a.png", "/b.png", 1)
		resp, err := http.Get(swapped)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("query constraints are enforced", func(t *testing.T) {
		tampered := strings.Replace(items[0].RetrievalURL, "w=320", "w=4000", 1)
		resp, err := http.Get(tampered)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("retrieval token cannot upload", func(t *testing.T) {
		retrievalToken := tokenOf(t, items[0].RetrievalURL)
		req, err := http.NewRequest(http.MethodPost, server.URL+"/file/site/uploads/a.png", strings.NewReader(""))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+retrievalToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func tokenOf(t *testing.T, raw string) string {
	t.Helper()
	i := strings.Index(raw, "token=")
	require.GreaterOrEqual(t, i, 0)
	token := raw[i+len("token="):]
	if j := strings.Index(token, "&"); j >= 0 {
		token = token[:j]
	}
	return token
}

func TestWrongSecretAbortsBatch(t *testing.T) {
	server, gw := NewServer(secret, "", WithLogger(quietLogger()))
	defer server.Close()

	u := newUploader(t, server.URL, "some-other-secret")
	items := []*scopedupload.UploadItem{
		{FileName: "a.png", Buffer: []byte("a")},
		{FileName: "b.png", Buffer: []byte("b")},
	}

	results, err := u.UploadAll(context.Background(), items)
	require.Error(t, err)
	assert.ErrorIs(t, err, scopedupload.ErrAuthFailed)
	assert.Contains(t, err.Error(), "bad signature")
	assert.Len(t, results, 1)
	assert.Equal(t, 0, gw.Len())
	assert.Equal(t, []byte("b"), items[1].Buffer)
}

func TestUnreachableGateway(t *testing.T) {
	server, _ := NewServer(secret, "")
	endpoint := server.URL
	server.Close()

	u := newUploader(t, endpoint, secret)
	_, err := u.UploadAll(context.Background(), []*scopedupload.UploadItem{{FileName: "a.png", Buffer: []byte("a")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, scopedupload.ErrTransport)
}

func TestTokenUsedInSameSecondAsMinted(t *testing.T) {
	server, gw := NewServer(secret, "", WithLogger(quietLogger()))
	defer server.Close()

	// iat == nbf == now; the request follows within the same second.
	u := newUploader(t, server.URL, secret, scopedupload.WithClock(time.Now))
	for i := 0; i < 5; i++ {
		item := &scopedupload.UploadItem{FileName: "fresh.png", Buffer: []byte("fresh")}
		_, err := u.UploadAll(context.Background(), []*scopedupload.UploadItem{item})
		require.NoError(t, err)

		resp, err := http.Get(item.RetrievalURL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 1, gw.Len())
}

func TestTokenNotYetValidRejected(t *testing.T) {
	server, gw := NewServer(secret, "", WithLogger(quietLogger()))
	defer server.Close()

	future := func() time.Time { return time.Now().Add(10 * time.Minute) }
	u := newUploader(t, server.URL, secret, scopedupload.WithClock(future))

	_, err := u.UploadAll(context.Background(), []*scopedupload.UploadItem{{FileName: "a.png", Buffer: []byte("a")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, scopedupload.ErrAuthFailed)
	assert.Equal(t, 0, gw.Len())
}
