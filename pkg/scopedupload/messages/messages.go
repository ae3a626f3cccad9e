// Package messages resolves user-facing message keys to display strings.
package messages

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys used by the uploader.
const (
	AuthFailed     = "auth_failed"
	ServerError    = "server_error"
	TokenFailed    = "token_failed"
	ConfigMissing  = "config_missing"
	InvalidPayload = "invalid_payload"
)

var translations = map[language.Tag]map[string]string{
	language.English: {
		AuthFailed:     "Authentication failed, please check the signing secret and algorithm",
		ServerError:    "Server error, please try again later",
		TokenFailed:    "Could not sign an access token, please check the signing secret and algorithm",
		ConfigMissing:  "Gateway configuration not found",
		InvalidPayload: "File content is not valid base64",
	},
	language.SimplifiedChinese: {
		AuthFailed:     "认证失败，请检查签名密钥和算法",
		ServerError:    "服务端出错，请稍后重试",
		TokenFailed:    "无法签发访问令牌，请检查签名密钥和算法",
		ConfigMissing:  "未找到网关配置",
		InvalidPayload: "文件内容不是有效的 base64 编码",
	},
}

// Catalog looks up messages for one language.
type Catalog struct {
	printer *message.Printer
	known   map[string]string
}

// New returns a catalog for lang (a BCP 47 tag such as "en" or "zh-CN").
// Unknown or unsupported languages fall back to English.
func New(lang string) *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			// keys are static, SetString only fails on malformed messages
			_ = b.SetString(tag, key, msg)
		}
	}

	tag := language.English
	if parsed, err := language.Parse(lang); err == nil {
		supported := b.Languages()
		_, idx, conf := language.NewMatcher(supported).Match(parsed)
		if conf != language.No {
			tag = supported[idx]
		}
	}

	return &Catalog{
		printer: message.NewPrinter(tag, message.Catalog(b)),
		known:   translations[language.English],
	}
}

// Default returns the English catalog.
func Default() *Catalog {
	return New("en")
}

// Message returns the display string for key. Unknown keys are returned as is.
func (c *Catalog) Message(key string) string {
	if _, ok := c.known[key]; !ok {
		return key
	}
	return c.printer.Sprintf(key)
}
