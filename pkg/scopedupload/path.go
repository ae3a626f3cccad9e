package scopedupload

import "strings"

// CanonicalPath joins parts into a single forward-slash path. Backslashes
// become slashes and empty segments are dropped, so the result never has a
// leading, trailing or doubled slash. Applying it twice changes nothing.
//
// Tokens embed this exact string, so the gateway must canonicalize the same way.
func CanonicalPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		for _, seg := range strings.Split(strings.ReplaceAll(part, `\`, "/"), "/") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}
	return strings.Join(segments, "/")
}

func scopePrefix(scope Scope) string {
	if scope == ScopeRetrieve {
		return "/api/image/"
	}
	return "/file/"
}

// ScopedPath returns the gateway route a token of the given scope covers.
func ScopedPath(scope Scope, basePath, itemPath string) string {
	return scopePrefix(scope) + CanonicalPath(basePath, itemPath)
}
