package billing

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/dukerupert/hoversale/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

// UPIConfig identifies the merchant receiving UPI transfers.
type UPIConfig struct {
	// VPA is the merchant's UPI id, e.g. "shop@okbank".
	VPA string

	// PayeeName is shown in the payer's UPI app.
	PayeeName string

	// QRSize is the edge length of generated QR codes in pixels. Default: 300
	QRSize int
}

// UPIIntent is a deep link a UPI app can open to pay the merchant.
type UPIIntent struct {
	URI         string `json:"upiUri"`
	AmountPaise int64  `json:"amountPaise"`
	Amount      string `json:"amount"`

	// QRCode is a PNG data URL of URI, for desktop payers.
	QRCode string `json:"qrCode,omitempty"`
}

// UPIBuilder builds UPI payment intents for the configured merchant.
type UPIBuilder struct {
	cfg UPIConfig
}

// NewUPIBuilder returns a builder, or ErrMissingMerchantVPA when no VPA is set.
func NewUPIBuilder(cfg UPIConfig) (*UPIBuilder, error) {
	if strings.TrimSpace(cfg.VPA) == "" {
		return nil, ErrMissingMerchantVPA
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = 300
	}
	return &UPIBuilder{cfg: cfg}, nil
}

// Build returns the intent for amountPaise with note as the transaction note.
// With withQR set the intent also carries a QR code.
func (b *UPIBuilder) Build(amountPaise int64, note string, withQR bool) (*UPIIntent, error) {
	const op = "upi.build"

	if amountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithOp(op)
	}

	amount := domain.FormatRupees(amountPaise)
	intent := &UPIIntent{
		URI:         buildUPIURI(b.cfg.VPA, b.cfg.PayeeName, amount, note),
		AmountPaise: amountPaise,
		Amount:      amount,
	}

	if withQR {
		png, err := qrcode.Encode(intent.URI, qrcode.Medium, b.cfg.QRSize)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to render QR code")
		}
		intent.QRCode = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	return intent, nil
}

// buildUPIURI keeps the parameter order UPI apps expect (pa, pn, am, cu, tn).
// Spaces are sent as %20 and '@' is left literal; several apps reject "+"
// and "%40".
func buildUPIURI(vpa, payee, amount, note string) string {
	esc := func(s string) string {
		return strings.NewReplacer("+", "%20", "%40", "@").Replace(url.QueryEscape(s))
	}
	return fmt.Sprintf("upi://pay?pa=%s&pn=%s&am=%s&cu=%s&tn=%s",
		esc(vpa), esc(payee), amount, domain.Currency, esc(note))
}
