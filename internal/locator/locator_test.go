package locator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRenderRoundTrip(t *testing.T) {
	const cdnHost = "cdn.example.com"
	loc := Locator{
		ChannelID:    1183629078323019841,
		MessageID:    1191694541993033761,
		AttachmentID: 1191694542261452871,
		Filename:     "59bcfcc8fda508c307155d49952a9f1d-8bd0d1a2",
		Expire:       0x65a65f07,
		Issue:        0x6593ea07,
		Signature:    []byte{0x62, 0x8f, 0xb6, 0x1c},
	}

	rendered := loc.Render(cdnHost)
	parsed, err := Parse(rendered, loc.MessageID)
	require.NoError(t, err)

	assert.Equal(t, loc.Save(), parsed.Save())
}

func TestParseMessageIDNotInURL(t *testing.T) {
	url := "https://cdn.example.com/attachments/1/2/file.bin?ex=65a65f07&is=6593ea07&hm=aabbcc"
	parsed, err := Parse(url, 999)
	require.NoError(t, err)
	assert.EqualValues(t, 999, parsed.MessageID)
	assert.EqualValues(t, 1, parsed.ChannelID)
	assert.EqualValues(t, 2, parsed.AttachmentID)
	assert.Equal(t, "file.bin", parsed.Filename)
}

func TestExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	notExpired := Locator{Expire: uint64(now.Unix()) + 1000}
	expired := Locator{Expire: uint64(now.Unix()) - 1}
	withinSkew := Locator{Expire: uint64(now.Unix()) + 100} // inside the 600s skew window

	assert.False(t, notExpired.Expired(now))
	assert.True(t, expired.Expired(now))
	assert.True(t, withinSkew.Expired(now))
}

func TestParseRejectsShortPath(t *testing.T) {
	_, err := Parse("https://cdn.example.com/attachments/1", 1)
	assert.Error(t, err)
}
