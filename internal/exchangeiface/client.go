package exchangeiface

import (
	"context"
	"encoding/json"
	"fmt"

	"mm-engine/internal/domain"
)

// Envelope is the exchange's uniform response wrapper; any code other than
// "00000" surfaces as an exchange-business error with the original code
// preserved for the retry classifier.
type Envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const successCode = "00000"

// RawClient is the signed-transport boundary this system consumes but does
// not define: HMAC-SHA256 signing, retry/backoff timing, and the
// papertrading header selection all live below this interface. Adapters
// call it with a method, path, query and body and get back the decoded
// envelope.
type RawClient interface {
	Do(ctx context.Context, method, path string, query map[string]string, body any) (Envelope, error)
}

// Classify turns a non-success envelope (or transport error) into a typed
// domain error so the scalping retry classifier can match on the
// preserved exchange code regardless of call depth.
func Classify(env Envelope, transportErr error) error {
	if transportErr != nil {
		return domain.NewError(domain.KindExchangeTransport, "request", transportErr)
	}
	if env.Code == successCode || env.Code == "" {
		return nil
	}
	switch env.Code {
	case domain.CodeRateLimited:
		return domain.NewError(domain.KindExchangeRateLimit, "request", &domain.ExchangeError{Code: env.Code, Msg: env.Msg})
	case domain.CodeUnauthorized, domain.CodeForbidden:
		return domain.NewError(domain.KindExchangeAuth, "request", &domain.ExchangeError{Code: env.Code, Msg: env.Msg})
	default:
		return domain.NewError(domain.KindExchangeBusiness, "request", &domain.ExchangeError{Code: env.Code, Msg: env.Msg})
	}
}

// Call is a small helper adapters use to invoke RawClient and unmarshal
// Data into out in one step, propagating a classified error.
func Call(ctx context.Context, c RawClient, method, path string, query map[string]string, body, out any) error {
	env, err := c.Do(ctx, method, path, query, body)
	if classified := Classify(env, err); classified != nil {
		return classified
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
