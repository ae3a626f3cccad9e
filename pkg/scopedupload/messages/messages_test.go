package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestCatalog(t *testing.T) {
	t.Run("english", func(t *testing.T) {
		c := New("en")
		assert.Equal(t, "Server error, please try again later", c.Message(ServerError))
	})

	t.Run("chinese", func(t *testing.T) {
		c := New("zh-CN")
		assert.Equal(t, "未找到网关配置", c.Message(ConfigMissing))
	})

	t.Run("unsupported language falls back to english", func(t *testing.T) {
		c := New("xx-invalid-$$")
		assert.Equal(t, translations[language.English][AuthFailed], c.Message(AuthFailed))
	})

	t.Run("known but unsupported language falls back to english", func(t *testing.T) {
		c := New("fr")
		assert.Equal(t, translations[language.English][TokenFailed], c.Message(TokenFailed))
	})

	t.Run("unknown key is returned verbatim", func(t *testing.T) {
		assert.Equal(t, "no_such_key", Default().Message("no_such_key"))
	})
}
