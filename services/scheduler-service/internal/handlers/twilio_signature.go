package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// validTwilioSignature checks X-Twilio-Signature against the HMAC-SHA1 of the
// webhook URL followed by every POST parameter sorted by name. The request
// form must already be parsed.
func validTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	if authToken == "" {
		return false
	}
	sig := r.Header.Get(twilioSignatureHeader)
	if sig == "" {
		return false
	}
	if webhookURL == "" {
		webhookURL = requestURL(r)
	}
	expected := twilioSignature(authToken, webhookURL, r.PostForm)
	return hmac.Equal([]byte(sig), []byte(expected))
}

func twilioSignature(authToken, webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, k := range keys {
		for _, v := range params[k] {
			payload.WriteString(k)
			payload.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// requestURL rebuilds the public URL the provider posted to, honouring the
// proxy headers set by the ingress.
func requestURL(r *http.Request) string {
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
