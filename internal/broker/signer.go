package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"futures_orchestrator/internal/config"
)

// hmacSigner signs requests the Binance way: API key header plus an
// HMAC-SHA256 signature over the query string including a timestamp.
type hmacSigner struct {
	apiKey     config.Secret
	secretKey  config.Secret
	recvWindow int
	now        func() time.Time
}

func newHMACSigner(cfg config.BrokerConfig) *hmacSigner {
	return &hmacSigner{
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		recvWindow: cfg.RecvWindow,
		now:        time.Now,
	}
}

func (s *hmacSigner) SignRequest(req *http.Request) error {
	req.Header.Set("X-MBX-APIKEY", s.apiKey.Reveal())

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", fmt.Sprintf("%d", s.now().UnixMilli()))
	}
	if s.recvWindow > 0 && q.Get("recvWindow") == "" {
		q.Set("recvWindow", fmt.Sprintf("%d", s.recvWindow))
	}

	queryString := q.Encode()
	mac := hmac.New(sha256.New, []byte(s.secretKey.Reveal()))
	mac.Write([]byte(queryString))
	signature := hex.EncodeToString(mac.Sum(nil))

	q.Set("signature", signature)
	req.URL.RawQuery = q.Encode()

	return nil
}
