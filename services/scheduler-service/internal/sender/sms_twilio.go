package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com"

// TwilioSender posts SMS through Twilio's Messages REST resource.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	http       *http.Client
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	return &TwilioSender{
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
		from:       strings.TrimSpace(from),
		baseURL:    twilioBaseURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	if s.accountSID == "" || s.authToken == "" {
		return "", errors.New("twilio credentials missing")
	}
	if s.from == "" {
		return "", errors.New("twilio from number missing")
	}
	if strings.TrimSpace(to) == "" {
		return "", errors.New("sms recipient required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(s.baseURL, "/"), s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("twilio status %d code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("twilio status %d", resp.StatusCode)
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode twilio response: %w", err)
	}
	if parsed.SID == "" {
		return "", errors.New("twilio response missing sid")
	}
	return parsed.SID, nil
}
