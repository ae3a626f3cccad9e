package scopedupload

import (
	"net/url"
	"strings"
)

// BuildRetrievalURL returns the shareable URL for an uploaded item. The token
// in it is freshly minted with GET access to this single path only.
//
// The query is the configured default query verbatim, in its original order,
// followed by token=<token>. Any configured token pair is dropped.
func (t *TokenIssuer) BuildRetrievalURL(itemPath string) (string, error) {
	token, err := t.Issue(itemPath, ScopeRetrieve)
	if err != nil {
		return "", err
	}

	if _, err := url.ParseQuery(t.cfg.DefaultQueryParams); err != nil {
		return "", newError(KindConfigMissing, itemPath, "invalid default query params", err)
	}

	pairs := defaultQueryPairs(t.cfg.DefaultQueryParams)
	pairs = append(pairs, "token="+url.QueryEscape(token))

	base := gatewayURL(t.cfg.Endpoint, ScopedPath(ScopeRetrieve, t.cfg.BasePath, itemPath))
	return base + "?" + strings.Join(pairs, "&"), nil
}

// defaultQueryPairs splits a raw query into its key=value pairs, keeping their
// encoding and order and skipping empty pairs and token keys.
func defaultQueryPairs(raw string) []string {
	raw = strings.TrimPrefix(raw, "?")
	var pairs []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if key == "token" {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs
}
