package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResendMailer_Send(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	m, err := NewResendMailer("re_test", "noreply@example.com", srv.URL)
	require.NoError(t, err)

	err = m.Send(context.Background(), Email{To: "alice@x.com", Subject: "Hi", Text: "hello", HTML: "<p>hello</p>"})
	require.NoError(t, err)

	assert.Equal(t, "noreply@example.com", got.From)
	assert.Equal(t, []string{"alice@x.com"}, got.To)
	assert.Equal(t, "Hi", got.Subject)
	assert.Equal(t, "<p>hello</p>", got.HTML)
}

func TestResendMailer_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	m, err := NewResendMailer("re_test", "bad", srv.URL)
	require.NoError(t, err)

	err = m.Send(context.Background(), Email{To: "alice@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from")
}

func TestNewResendMailer_Validation(t *testing.T) {
	_, err := NewResendMailer("", "a@x.com", "")
	assert.Error(t, err)
	_, err = NewResendMailer("key", "", "")
	assert.Error(t, err)

	m, err := NewResendMailer("key", "a@x.com", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultResendURL, m.baseURL)
}

func TestNewSMTPMailer_Validation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{})
	assert.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Server: "smtp.example.com", User: "u", Password: "p"})
	assert.Error(t, err, "server without port")

	m, err := NewSMTPMailer(SMTPConfig{Server: "smtp.example.com:587", User: "u@example.com", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u@example.com", m.cfg.From)
	assert.Equal(t, "smtp.example.com", m.host)
}

func TestSMTPMailer_Send(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Server: "smtp.example.com:587", User: "u@example.com", Password: "p"})
	require.NoError(t, err)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Equal(t, "u@example.com", from)
		return nil
	}

	err = m.Send(context.Background(), Email{To: "alice@x.com", Subject: "Reset password OTP", Text: "code 123456", HTML: "<p>code 123456</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"alice@x.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Reset password OTP\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, gotMsg, "<p>code 123456</p>")
}

func TestSMTPMailer_SendErrorAndCancelledContext(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Server: "smtp.example.com:587", User: "u", Password: "p"})
	require.NoError(t, err)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }

	err = m.Send(context.Background(), Email{To: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421 try later")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Email{To: "a@x.com"}), context.Canceled)
}

func TestLogMailer_Send(t *testing.T) {
	assert.NoError(t, NewLogMailer(nil).Send(context.Background(), Email{To: "a@x.com"}))
}
