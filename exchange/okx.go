package exchange

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/evdnx/gomomentum/types"
)

// OKX error codes that are not the caller's fault.
var (
	rateLimitCodes = map[string]bool{
		"50011": true, // request too frequent
		"50061": true, // sub-account rate limit
	}
	transientCodes = map[string]bool{
		"50001": true, // service temporarily unavailable
		"50004": true, // endpoint request timeout
		"50013": true, // system busy
		"50026": true, // system error, try again later
	}
)

type orderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	ClOrdID string `json:"clOrdId,omitempty"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px,omitempty"`
	TgtCcy  string `json:"tgtCcy,omitempty"`
}

// encodeOrder renders an intent as an OKX place-order body. Passive orders go
// out as post_only so the exchange rejects rather than crosses.
func encodeOrder(intent types.OrderIntent, tdMode string) ([]byte, error) {
	req := orderRequest{
		InstID:  intent.Symbol,
		TdMode:  tdMode,
		ClOrdID: intent.ClientOrderID,
		Side:    string(intent.Side),
		Sz:      decimal.NewFromFloat(intent.Quantity).String(),
	}
	switch intent.OrderType {
	case types.Market:
		req.OrdType = "market"
		// Spot market buys are sized in quote currency unless told otherwise.
		req.TgtCcy = "base_ccy"
	default:
		req.OrdType = "post_only"
		req.Px = decimal.NewFromFloat(intent.LimitPrice).String()
	}
	return json.Marshal(req)
}

// classification is the verdict on one HTTP exchange.
type classification struct {
	kind    Kind // zero on success
	code    string
	msg     string
	orderID string
}

func (c classification) ok() bool { return c.kind == 0 }

// classify maps an HTTP status and OKX envelope to success or a failure kind.
func classify(status int, body []byte) classification {
	if status == http.StatusTooManyRequests {
		return classification{kind: KindRateLimited, msg: "http 429"}
	}
	if status >= 500 {
		return classification{kind: KindTransient, msg: http.StatusText(status)}
	}

	valid := gjson.ValidBytes(body)
	var parsed gjson.Result
	if valid {
		parsed = gjson.ParseBytes(body)
	}
	code := parsed.Get("code").String()
	msg := parsed.Get("msg").String()

	// Per-order status overrides a generic envelope failure.
	if sCode := parsed.Get("data.0.sCode").String(); code != "0" && sCode != "" && sCode != "0" {
		code = sCode
		msg = parsed.Get("data.0.sMsg").String()
	}
	switch {
	case rateLimitCodes[code]:
		return classification{kind: KindRateLimited, code: code, msg: msg}
	case transientCodes[code]:
		return classification{kind: KindTransient, code: code, msg: msg}
	}

	if status < 200 || status >= 300 {
		return classification{kind: KindFatal, code: code, msg: nonEmpty(msg, http.StatusText(status))}
	}
	if !valid || !parsed.IsObject() || !parsed.Get("code").Exists() {
		return classification{kind: KindFatal, msg: "malformed response body"}
	}
	if code != "0" {
		return classification{kind: KindFatal, code: code, msg: msg}
	}
	return classification{orderID: parsed.Get("data.0.ordId").String()}
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
