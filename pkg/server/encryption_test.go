package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryption(t *testing.T) {
	t.Run("Encrypt and Decrypt", func(t *testing.T) {
		srv := &Server{encryptionKey: testEncryptionKey}

		plaintext := []byte("5b7f3c1e-9f3a-4d1b-8c2e-6a0f1e2d3c4b")
		encrypted, err := srv.encrypt(t.Context(), plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, encrypted)

		decrypted, err := srv.decrypt(t.Context(), encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("Nonce Differs Per Call", func(t *testing.T) {
		srv := &Server{encryptionKey: testEncryptionKey}
		a, err := srv.encrypt(t.Context(), []byte("same"))
		require.NoError(t, err)
		b, err := srv.encrypt(t.Context(), []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Decryption with Wrong Key Fails", func(t *testing.T) {
		srv1 := &Server{encryptionKey: testEncryptionKey}
		srv2 := &Server{encryptionKey: "12345678901234567890123456789012"}

		encrypted, err := srv1.encrypt(t.Context(), []byte("secret"))
		require.NoError(t, err)

		_, err = srv2.decrypt(t.Context(), encrypted)
		assert.Error(t, err)
	})

	t.Run("Missing Key Fails", func(t *testing.T) {
		srv := &Server{}

		_, err := srv.encrypt(t.Context(), []byte("secret"))
		assert.ErrorContains(t, err, "no encryption key configured")

		_, err = srv.decrypt(t.Context(), []byte("some-random-data"))
		assert.Error(t, err)
	})

	t.Run("Short Key Fails", func(t *testing.T) {
		srv := &Server{encryptionKey: "short"}
		_, err := srv.encrypt(t.Context(), []byte("secret"))
		assert.ErrorContains(t, err, "invalid encryption key length")
	})

	t.Run("Malformed Ciphertext", func(t *testing.T) {
		srv := &Server{encryptionKey: testEncryptionKey}

		_, err := srv.decrypt(t.Context(), []byte("short"))
		assert.Error(t, err)

		_, err = srv.decrypt(t.Context(), make([]byte, 50))
		assert.Error(t, err)
	})
}
