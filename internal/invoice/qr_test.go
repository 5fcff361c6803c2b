package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQR_FullPayload(t *testing.T) {
	payload := "RN:Fortum\nAM:599,00\nDT:20250415\nRF:987654321\ncc:sek\nEMAIL:kund@fortum.se\nURL:https://fortum.se\n"

	res, err := ParseQR(payload, now)
	require.NoError(t, err)

	d := res.Draft
	assert.Equal(t, "Fortum", d.ServiceName)
	assert.Equal(t, "599", d.Amount.String())
	assert.Equal(t, "SEK", d.Currency)
	assert.True(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC).Equal(d.DueDate))
	assert.Equal(t, "987654321", d.ReferenceNumber)
	require.NotNil(t, d.ProviderContact)
	assert.Equal(t, "kund@fortum.se", d.ProviderContact.Email)
	assert.Equal(t, "https://fortum.se", d.ProviderContact.Website)
	assert.Equal(t, "sek", res.Fields["CC"])
}

func TestParseQR_DashedDateAndAliases(t *testing.T) {
	res, err := ParseQR("NAME:Hyresvärden\r\nBETBEL:8500.00\r\nFORDFDAT:2025-04-01\r\nOCR:5555", now)
	require.NoError(t, err)

	assert.Equal(t, "Hyresvärden", res.Draft.ServiceName)
	assert.Equal(t, "8500", res.Draft.Amount.String())
	assert.True(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).Equal(res.Draft.DueDate))
	assert.Equal(t, "5555", res.Draft.ReferenceNumber)
	assert.Nil(t, res.Draft.ProviderContact)
}

func TestParseQR_DefaultsDueDate(t *testing.T) {
	res, err := ParseQR("RN:Bredband2\nAM:349", now)
	require.NoError(t, err)
	assert.True(t, now.Add(DefaultDueIn).Equal(res.Draft.DueDate))
	assert.Equal(t, "SEK", res.Draft.Currency)
}

func TestParseQR_Empty(t *testing.T) {
	for _, payload := range []string{"", "   ", "just some text"} {
		_, err := ParseQR(payload, now)
		assert.ErrorIs(t, err, ErrNoFields, "payload %q", payload)
	}
}
