package qr_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-admission/internal/codec"
	"ms-admission/internal/codec/qr"
	"ms-admission/internal/models"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	gen := qr.NewGenerator("door-secret")
	cred := models.IndividualTicket{OrderID: "o1", TicketTierID: "t1", CustomerEmail: "a@b.c"}

	encrypted, err := gen.EncryptCredential(cred)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "orderId", "payload must not leak plaintext")

	plain, err := gen.Decrypt(encrypted)
	require.NoError(t, err)

	decoded, err := codec.Decode(plain)
	require.NoError(t, err)
	assert.Equal(t, cred, decoded)
}

func TestDecryptWithWrongSecret(t *testing.T) {
	cred := models.GroupPass{GroupPassID: "gl-1", EventID: "e1", TotalUses: 5, LeadEmail: "l@e.c", LeadName: "L"}

	encrypted, err := qr.NewGenerator("secret-a").EncryptCredential(cred)
	require.NoError(t, err)

	plain, err := qr.NewGenerator("secret-b").Decrypt(encrypted)
	require.NoError(t, err, "CFB decryption always yields bytes")

	_, err = codec.Decode(plain)
	assert.Error(t, err, "garbage plaintext never decodes into a credential")
}

func TestDecryptRejectsMalformedPayloads(t *testing.T) {
	gen := qr.NewGenerator("door-secret")

	_, err := gen.Decrypt("%%%not-base64%%%")
	assert.Error(t, err)

	_, err = gen.Decrypt("c2hvcnQ") // valid base64, shorter than one AES block
	assert.Error(t, err)
}

func TestRenderQRProducesPNG(t *testing.T) {
	gen := qr.NewGenerator("door-secret")
	cred := models.IndividualTicket{OrderID: "o1", TicketTierID: "t1", CustomerEmail: "a@b.c"}

	png, err := gen.RenderQR(cred, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected a PNG image")
}
