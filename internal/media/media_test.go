package media

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI(t *testing.T) {
	req := require.New(t)

	raw := []byte("not really a png")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	data, contentType, err := DecodeDataURI(uri, 1024)
	req.NoError(err)
	req.Equal(raw, data)
	req.Equal("image/png", contentType)
}

func TestDecodeDataURIRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"no scheme":    "image/png;base64,aGk=",
		"no comma":     "data:image/png;base64aGk=",
		"not base64":   "data:image/png,plain",
		"bad alphabet": "data:image/png;base64,@@@@",
	}
	for name, uri := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeDataURI(uri, 1024)
			require.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

func TestDecodeDataURIEnforcesSizeLimit(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(make([]byte, 64))
	_, _, err := DecodeDataURI("data:image/png;base64,"+payload, 16)
	require.ErrorIs(t, err, ErrImageTooLarge)
}

func TestStorageKeyUsesContentTypeExtension(t *testing.T) {
	req := require.New(t)
	req.Regexp(`^chat/\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}\.png$`, storageKey("image/png"))
	req.Regexp(`\.bin$`, storageKey(""))
}
