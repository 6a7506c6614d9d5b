package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformAddr(t *testing.T) {
	const def = "0.0.0.0:8081"

	t.Run("no PORT", func(t *testing.T) {
		t.Setenv("PORT", "")
		assert.Equal(t, def, platformAddr(def, def))
	})

	t.Run("PORT overrides default", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		assert.Equal(t, "0.0.0.0:9000", platformAddr(def, def))
	})

	t.Run("explicit addr wins", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		assert.Equal(t, "127.0.0.1:7000", platformAddr("127.0.0.1:7000", def))
	})
}

func TestPlatformDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform")
	assert.Equal(t, "postgres://platform", platformDatabaseURL(""))
	assert.Equal(t, "postgres://own", platformDatabaseURL("postgres://own"))
}
