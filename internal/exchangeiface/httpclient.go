package exchangeiface

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HTTPClient is the concrete, HMAC-signed RawClient every adapter in this
// package talks to. Signing uses a canonical query string: sort params,
// url-encode and join with '&', then sign with HMAC-SHA256 over
// timestamp+METHOD+path(+"?"+query)+body and hex-encode the result.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	Passphrase string
	Simulated  bool
	HTTPClient *http.Client
}

func NewHTTPClient(baseURL, apiKey, secretKey, passphrase string, simulated bool) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL, APIKey: apiKey, SecretKey: secretKey, Passphrase: passphrase,
		Simulated: simulated, HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Do(ctx context.Context, method, path string, query map[string]string, body any) (Envelope, error) {
	queryString := encodeQuery(query)
	fullPath := path
	if queryString != "" {
		fullPath += "?" + queryString
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return Envelope{}, err
		}
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := c.sign(timestamp, method, fullPath, bodyBytes)

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+fullPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.APIKey)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", c.Passphrase)
	if c.Simulated {
		req.Header.Set("PAPTRADING", "1")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Envelope{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (c *HTTPClient) sign(timestamp, method, fullPath string, body []byte) string {
	prehash := timestamp + strings.ToUpper(method) + fullPath + string(body)
	mac := hmac.New(sha256.New, []byte(c.SecretKey))
	mac.Write([]byte(prehash))
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeQuery(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := url.Values{}
	for _, k := range keys {
		vals.Set(k, query[k])
	}
	return vals.Encode()
}
