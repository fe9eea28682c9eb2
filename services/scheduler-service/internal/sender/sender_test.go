package sender

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

func TestWebhookSMSSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"gw-1"}`))
	}))
	defer srv.Close()

	id, err := NewWebhookSMSSender(srv.URL, "tok").SendSMS(context.Background(), "+306900000000", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "gw-1" {
		t.Fatalf("expected gateway id, got %q", id)
	}
	if got["to"] != "+306900000000" || got["body"] != "hello" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookSMSSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewWebhookSMSSender(srv.URL, "").SendSMS(context.Background(), "+1", "x"); err == nil {
		t.Fatalf("expected error on 502")
	}
	if _, err := NewWebhookSMSSender("", "").SendSMS(context.Background(), "+1", "x"); err == nil {
		t.Fatalf("expected error without url")
	}
}

func TestTwilioSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "secret" {
			t.Errorf("bad basic auth")
		}
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "+15550001" || r.PostForm.Get("From") != "+15559999" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "secret", "+15559999")
	s.baseURL = srv.URL
	id, err := s.SendSMS(context.Background(), "+15550001", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "SM123" {
		t.Fatalf("expected SM123, got %q", id)
	}
}

func TestTwilioSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To number"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "secret", "+15559999")
	s.baseURL = srv.URL
	_, err := s.SendSMS(context.Background(), "+1", "hi")
	if err == nil || !strings.Contains(err.Error(), "21211") {
		t.Fatalf("expected twilio error code, got %v", err)
	}
}

type fakeSNS struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

func TestSNSSender(t *testing.T) {
	api := &fakeSNS{}
	s := &SNSSender{client: api}
	id, err := s.SendSMS(context.Background(), "+15550001", "hi")
	if err != nil || id != "sns-1" {
		t.Fatalf("expected sns-1, got %q err=%v", id, err)
	}
	if aws.ToString(api.in.PhoneNumber) != "+15550001" || aws.ToString(api.in.Message) != "hi" {
		t.Fatalf("unexpected publish input")
	}

	api.err = errors.New("throttled")
	if _, err := s.SendSMS(context.Background(), "+15550001", "hi"); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeSES struct {
	in *ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.in = in
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender(t *testing.T) {
	api := &fakeSES{}
	s := &SESSender{client: api, from: "noreply@salon.test"}
	id, err := s.SendEmail(context.Background(), "maria@example.com", "Reminder", "<p>hi</p>")
	if err != nil || id != "ses-1" {
		t.Fatalf("expected ses-1, got %q err=%v", id, err)
	}
	if aws.ToString(api.in.Source) != "noreply@salon.test" {
		t.Fatalf("unexpected source")
	}
	if aws.ToString(api.in.Message.Body.Html.Data) != "<p>hi</p>" {
		t.Fatalf("expected html body")
	}
}

type fakeSendGrid struct {
	status  int
	headers map[string][]string
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, _ *mail.SGMailV3) (*rest.Response, error) {
	return &rest.Response{StatusCode: f.status, Headers: f.headers}, nil
}

func TestSendGridSender(t *testing.T) {
	s := &SendGridSender{client: &fakeSendGrid{status: 202, headers: map[string][]string{"X-Message-Id": {"sg-1"}}}, from: "a@b.c"}
	id, err := s.SendEmail(context.Background(), "maria@example.com", "Hi", "<p>x</p>")
	if err != nil || id != "sg-1" {
		t.Fatalf("expected sg-1, got %q err=%v", id, err)
	}

	s.client = &fakeSendGrid{status: 401}
	if _, err := s.SendEmail(context.Background(), "maria@example.com", "Hi", "<p>x</p>"); err == nil {
		t.Fatalf("expected error on 401")
	}
}

func TestTestSender(t *testing.T) {
	s := NewTestSender(nil)
	s.now = func() time.Time { return time.Unix(0, 42) }
	id, err := s.SendSMS(context.Background(), "+1", "x")
	if err != nil || id != "test_42" {
		t.Fatalf("expected test_42, got %q", id)
	}
}

func TestNew(t *testing.T) {
	sms, email, err := New(context.Background(), Config{TestMode: true, SMSProvider: "twilio"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := sms.(*TestSender); !ok {
		t.Fatalf("expected test sender in test mode")
	}
	if _, ok := email.(*TestSender); !ok {
		t.Fatalf("expected test sender in test mode")
	}

	sms, email, err = New(context.Background(), Config{SMSProvider: "webhook", EmailProvider: "smtp", SMTPHost: "localhost", SMTPPort: "1025"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := sms.(*WebhookSMSSender); !ok {
		t.Fatalf("expected webhook sender, got %T", sms)
	}
	if _, ok := email.(*SMTPSender); !ok {
		t.Fatalf("expected smtp sender, got %T", email)
	}

	if _, _, err := New(context.Background(), Config{SMSProvider: "pigeon"}, nil); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@x.test", "to@y.test", "Hello", "<p>x</p>", "<id@x.test>", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if !strings.Contains(msg, "Content-Type: text/html; charset=utf-8") {
		t.Fatalf("expected html content type: %q", msg)
	}
	if !strings.HasSuffix(msg, "<p>x</p>\r\n") {
		t.Fatalf("expected body at end: %q", msg)
	}
	if domainOf("from@x.test") != "x.test" {
		t.Fatalf("unexpected domain")
	}
}
