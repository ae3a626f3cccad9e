package scopedupload

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/tendant/scoped-upload/pkg/scopedupload/mimetype"
)

const (
	// ClientIdentifier is sent as User-Agent on every upload.
	ClientIdentifier = "scoped-upload"

	// FileFieldName is the multipart field carrying the payload.
	FileFieldName = "file"

	multipartMarker = "multipart/form-data"
)

// MimeLookup maps a file name to a content type, returning "" when unknown.
type MimeLookup func(fileName string) string

// BuildUploadRequest assembles the upload descriptor for one item. It performs
// no I/O. cfg must already be validated; an unparseable endpoint yields an
// empty Host header.
func BuildUploadRequest(cfg GatewayConfig, itemPath, token string, payload []byte, fileName string, lookup MimeLookup) *UploadRequest {
	cfg = cfg.Normalize()
	if lookup == nil {
		lookup = mimetype.Lookup
	}

	contentType := lookup(fileName)
	if contentType == "" {
		contentType = mimetype.DefaultContentType
	}

	header := make(http.Header)
	header.Set("Host", endpointHostname(cfg.Endpoint))
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", multipartMarker)
	header.Set("User-Agent", ClientIdentifier)

	return &UploadRequest{
		Method: http.MethodPost,
		URL:    gatewayURL(cfg.Endpoint, ScopedPath(ScopeUpload, cfg.BasePath, itemPath)),
		Header: header,
		File: FilePart{
			FieldName:   FileFieldName,
			FileName:    fileName,
			ContentType: contentType,
			Content:     payload,
		},
	}
}

func endpointHostname(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// gatewayURL appends an already canonical route to endpoint, escaping each
// segment. The signed path stays unescaped; the gateway decodes before
// comparing.
func gatewayURL(endpoint, route string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + route
	}
	u.Path = strings.TrimRight(u.Path, "/") + route
	u.RawPath = ""
	return u.String()
}
