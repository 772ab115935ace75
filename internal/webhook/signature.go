// Package webhook builds and signs the JSON payload delivered to
// merchants, mirroring the HMAC scheme of the original crypto utilities.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"time"

	"wopay.dev/internal/domain"
)

// Sign returns the hex-encoded HMAC-SHA256 of body under secret, used as
// the value of the X-WoPay-Signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign(secret, body), comparing
// in constant time so a timing attack can't be used to recover the
// signature byte by byte.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// BuildPayload renders the JSON body for one delivery attempt. The
// returned domain.WebhookEventType classifies the attempt for our own
// queue and stats; it is not the wire envelope's event_type, which is
// always the fixed domain.WebhookPayloadEventType.
func BuildPayload(p *domain.Payment) ([]byte, domain.WebhookEventType, error) {
	event := domain.EventTypeForStatus(p.Status)

	var txHash *string
	if p.TxHash != "" {
		txHash = &p.TxHash
	}

	payload := domain.WebhookPayload{
		EventType: domain.WebhookPayloadEventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: domain.WebhookPayloadData{
			PaymentID:       p.ID,
			OrderID:         p.OrderID,
			Status:          p.Status,
			Amount:          p.ExpectedAmount.String(),
			Currency:        p.Currency,
			TransactionHash: txHash,
			Confirmations:   p.Confirmations,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, event, err
	}
	return body, event, nil
}
