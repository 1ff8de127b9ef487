package promptpay

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16CheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), CRC16("123456789"))
}

func TestPayloadStaticPhone(t *testing.T) {
	got, err := Payload("081-234-5678", 0, Options{})
	require.NoError(t, err)

	body := "000201" + "010211" +
		"2937" + "0016A000000677010111" + "01130066812345678" +
		"5802TH" + "5303764" + "6304"
	require.True(t, strings.HasPrefix(got, body), got)
	assert.Equal(t, body+fmt.Sprintf("%04X", CRC16(body)), got)
}

func TestPayloadDynamicAmount(t *testing.T) {
	got, err := Payload("0812345678", 50050, Options{})
	require.NoError(t, err)
	assert.Contains(t, got, "010212")
	assert.Contains(t, got, "5406500.50")
	assert.Len(t, got[strings.Index(got, "6304")+4:], 4)
}

func TestPayloadTargets(t *testing.T) {
	cases := []struct {
		name   string
		target string
		want   string
	}{
		{"international phone", "+66812345678", "01130066812345678"},
		{"tax id", "1-2345-67890-12-3", "02131234567890123"},
		{"e-wallet", "123456789012345", "0315123456789012345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Payload(tc.target, 0, Options{})
			require.NoError(t, err)
			assert.Contains(t, got, tc.want)
		})
	}
}

func TestPayloadRejectsBadInput(t *testing.T) {
	_, err := Payload("12345", 0, Options{})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = Payload("0812345678", -1, Options{})
	assert.Error(t, err)
}

func TestPayloadMerchantDetailsTruncated(t *testing.T) {
	got, err := Payload("0812345678", 0, Options{
		MerchantName: "Suda Hair and Beauty Salon Bangkok",
		MerchantCity: "Bangkok Metropolis",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "5925Suda Hair and Beauty Salo")
	assert.Contains(t, got, "6015Bangkok Metropo")
}

func TestPayloadThaiMerchantNameKeepsWholeRunes(t *testing.T) {
	name := "ร้านเสริมสวยสุดาบางกะปิกรุงเทพมหานคร"
	got, err := Payload("0812345678", 0, Options{MerchantName: name, MerchantCity: "กรุงเทพมหานคร"})
	require.NoError(t, err)
	require.True(t, utf8.ValidString(got))

	want := string([]rune(name)[:maxNameLength])
	assert.Contains(t, got, fmt.Sprintf("59%02d%s", len(want), want))
	assert.Contains(t, got, fmt.Sprintf("60%02d%s", len("กรุงเทพมหานคร"), "กรุงเทพมหานคร"))
	assert.Equal(t, fmt.Sprintf("%04X", CRC16(got[:len(got)-4])), got[len(got)-4:])
}
