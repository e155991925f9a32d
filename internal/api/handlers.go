package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"studentauth/internal/auth"
	"studentauth/internal/models"
)

// Accounts is the account lifecycle the API exposes. *auth.Service implements it.
type Accounts interface {
	Register(ctx context.Context, name, email, password string) (*models.Account, error)
	VerifyEmail(ctx context.Context, token string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email string, code int) error
	ChangePassword(ctx context.Context, email, newPassword, confirmPassword string) error
	DeleteAccount(ctx context.Context, identity string) (*models.Account, error)
	GetAccount(ctx context.Context, identity string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

var _ Accounts = (*auth.Service)(nil)

type handler struct {
	accounts Accounts
	logger   *slog.Logger
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusCreated, "Registration successful. Please verify your email.", nil)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	type student struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	writeOK(w, http.StatusOK, "Student logged in successfully", struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
		Student   student   `json:"student"`
	}{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Student: student{
			ID:    result.Account.Identity(),
			Name:  result.Account.Name,
			Email: result.Account.Email,
		},
	})
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.accounts.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "Email verified successfully", nil)
}

func (h *handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "Reset password OTP is sent to your email", nil)
}

// otpCode accepts an OTP sent either as a JSON number or a numeric string.
type otpCode int

func (c *otpCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*c = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("otp must be numeric: %w", err)
	}
	*c = otpCode(n)
	return nil
}

func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string  `json:"email"`
		OTP   otpCode `json:"otp"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.accounts.VerifyOTP(r.Context(), req.Email, int(req.OTP)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "OTP verified successfully", nil)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email           string `json:"email"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), req.Email, req.NewPassword, req.ConfirmPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "Password changed successfully", nil)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := h.accounts.DeleteAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("Student with id %s deleted successfully", id), deleted)
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	writeOK(w, http.StatusOK, "Student fetched successfully", accounts)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), accountFrom(r.Context()).Identity())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "Student fetched successfully", account)
}
