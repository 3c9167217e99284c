/*
webhook.go - Webhook headers and signature verification

PURPOSE:
  The headers Shopify attaches to webhook deliveries and the HMAC scheme
  that proves a delivery really came from Shopify: the X-Shopify-Hmac-Sha256
  header carries base64(HMAC-SHA256(secret, raw body)).
*/
package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Headers Shopify sets on webhook deliveries.
const (
	HeaderTopic      = "X-Shopify-Topic"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
)

// ComputeWebhookHMAC returns the signature Shopify would send for body.
// Exported so tests can sign their own payloads.
func ComputeWebhookHMAC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookHMAC checks a delivery's signature against the raw body.
// The comparison is constant-time.
func VerifyWebhookHMAC(body []byte, secret, provided string) bool {
	expected := ComputeWebhookHMAC(body, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}
