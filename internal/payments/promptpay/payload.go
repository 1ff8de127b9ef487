// Package promptpay builds Thai PromptPay QR payloads.
package promptpay

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	guidPromptPay = "A000000677010111"

	tagFormat      = "00"
	tagInitiation  = "01"
	tagMerchant    = "29"
	tagCurrency    = "53"
	tagAmount      = "54"
	tagCountry     = "58"
	tagMerchName   = "59"
	tagMerchCity   = "60"
	tagCRC         = "63"
	subGUID        = "00"
	subPhone       = "01"
	subNationalID  = "02"
	subEWallet     = "03"
	currencyTHB    = "764"
	initStatic     = "11"
	initDynamic    = "12"
	maxNameLength  = 25
	maxCityLength  = 15
	phoneTagLength = 13
)

var ErrInvalidTarget = errors.New("promptpay: target must be a phone number, 13-digit tax id or 15-digit e-wallet id")

// Options adds optional merchant details to the payload.
type Options struct {
	MerchantName string
	MerchantCity string
}

// Payload returns the EMVCo string for target. amount is in satang; zero
// produces a static QR the payer fills in.
func Payload(target string, amountSatang int64, opts Options) (string, error) {
	sub, id, err := accountField(target)
	if err != nil {
		return "", err
	}
	if amountSatang < 0 {
		return "", fmt.Errorf("promptpay: negative amount %d", amountSatang)
	}

	var b strings.Builder
	b.WriteString(field(tagFormat, "01"))
	if amountSatang > 0 {
		b.WriteString(field(tagInitiation, initDynamic))
	} else {
		b.WriteString(field(tagInitiation, initStatic))
	}
	b.WriteString(field(tagMerchant, field(subGUID, guidPromptPay)+field(sub, id)))
	b.WriteString(field(tagCountry, "TH"))
	if name := truncate(opts.MerchantName, maxNameLength); name != "" {
		b.WriteString(field(tagMerchName, name))
	}
	if city := truncate(opts.MerchantCity, maxCityLength); city != "" {
		b.WriteString(field(tagMerchCity, city))
	}
	b.WriteString(field(tagCurrency, currencyTHB))
	if amountSatang > 0 {
		b.WriteString(field(tagAmount, fmt.Sprintf("%d.%02d", amountSatang/100, amountSatang%100)))
	}
	b.WriteString(tagCRC + "04")
	b.WriteString(fmt.Sprintf("%04X", CRC16(b.String())))
	return b.String(), nil
}

// accountField picks the merchant sub-tag from the shape of target.
func accountField(target string) (string, string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, target)

	switch {
	case len(digits) == 15:
		return subEWallet, digits, nil
	case len(digits) == 13:
		return subNationalID, digits, nil
	case len(digits) >= 9 && len(digits) <= 11:
		return subPhone, formatPhone(digits), nil
	}
	return "", "", ErrInvalidTarget
}

// formatPhone converts 0812345678 or 66812345678 into 0066812345678.
func formatPhone(digits string) string {
	digits = strings.TrimPrefix(digits, "66")
	digits = strings.TrimPrefix(digits, "0")
	n := "66" + digits
	return strings.Repeat("0", phoneTagLength-len(n)) + n
}

func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// truncate keeps at most n characters so Thai names are never cut mid rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// CRC16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
