package scopedupload

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-enough-bytes"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *GatewayConfig {
	return &GatewayConfig{
		Endpoint:           "https://img.example.com:8443/",
		BasePath:           `\blog\2024/`,
		SigningSecret:      testSecret,
		SigningAlgorithm:   AlgorithmHS256,
		TokenIssuer:        "blog",
		DefaultQueryParams: "w=800&fmt=webp",
	}
}

func fixedClock() time.Time { return fixedNow }

func parseToken(t *testing.T, token string) (jwt.MapClaims, *jwt.Token) {
	t.Helper()
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	return claims, parsed
}

// permissionsOf decodes the permissions claim back into typed values.
func permissionsOf(t *testing.T, claims jwt.MapClaims) []Permission {
	t.Helper()
	raw, err := json.Marshal(claims["permissions"])
	require.NoError(t, err)
	var perms []Permission
	require.NoError(t, json.Unmarshal(raw, &perms))
	return perms
}
