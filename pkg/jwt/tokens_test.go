package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseRoundtrip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("user-42", "secret", time.Hour)
	req.NoError(err)

	claims, err := Parse(token, "secret")
	req.NoError(err)
	req.Equal("user-42", claims.UserID)
	req.Equal("chat-api", claims.Issuer)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("user-42", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other-secret")
	require.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken("user-42", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "secret")
	require.Error(t, err)
}
