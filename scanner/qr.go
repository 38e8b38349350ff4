package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

// ErrNoCode is returned when an image holds no readable QR code.
var ErrNoCode = errors.New("no QR code found in image")

// DecodeImage reads a PNG or JPEG image and returns the text of the QR code
// it contains.
func DecodeImage(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}

// EncodePayload renders the merchant payload in the short field form. The
// merchant address is written checksummed; payloads the payment side would
// reject are refused with the same validation error.
func EncodePayload(merchant, amount, kind string) (string, error) {
	var failures []string
	if !utils.IsValidAddress(merchant) {
		failures = append(failures, types.KindInvalidAddress)
	}
	if _, err := utils.ValidateAmount(amount); err != nil {
		failures = append(failures, types.KindInvalidAmount)
	}
	if len(failures) > 0 {
		return "", types.NewValidationError(failures)
	}

	payload := struct {
		MerchantAddress string `json:"ma"`
		Amount          string `json:"a"`
		PaymentKind     string `json:"txn,omitempty"`
	}{utils.NormalizeAddress(merchant), strings.TrimSpace(amount), kind}
	if kind == types.DefaultPaymentKind {
		payload.PaymentKind = ""
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GenerateQR renders payload as a PNG QR code of size x size pixels.
func GenerateQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
