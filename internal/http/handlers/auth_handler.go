// Auth HTTP handlers.
//
//   - POST /auth/signup             (register, returns a bearer token)
//   - POST /auth/login              (exchange credentials for a token)
//   - POST /auth/verify             (confirm an email verification token)
//   - POST /auth/send-verification  (re-send the verification email)
//   - GET  /auth/me                 (profile of the bearer)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SignupRequest is the JSON payload for creating an account.
type SignupRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"pharmacist@example.com"`
	Username string `json:"username" binding:"required" example:"jdoe"`
	Password string `json:"password" binding:"required" example:"correct horse battery staple"`
}

// SignupResponse confirms registration and carries the first token.
type SignupResponse struct {
	Message     string `json:"message"      example:"User registered successfully. Please check your email to verify your account."`
	AccessToken string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"pharmacist@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery staple"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// VerifyRequest is the JSON payload for confirming an email address.
type VerifyRequest struct {
	Token string `json:"token" binding:"required" example:"3f1b8c9e-2a44-4d1e-9d55-7f0f3c1b2a10"`
}

// SendVerificationRequest asks for a new verification email.
type SendVerificationRequest struct {
	Email string `json:"email" binding:"required,email" example:"pharmacist@example.com"`
}

const (
	msgSignedUp         = "User registered successfully. Please check your email to verify your account."
	msgVerified         = "Email verified successfully"
	msgVerificationSent = "If the account exists and is not verified, a verification email has been sent"
)

// Signup godoc
// @ID          signup
// @Summary     Register an account
// @Description Creates an account, sends a verification email and returns a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignupRequest  true  "Account details"
// @Success     201   {object}  handlers.SignupResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid email, username and password are required")
		return
	}
	token, err := h.auth.Signup(c.Request.Context(), req.Email, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, SignupResponse{Message: msgSignedUp, AccessToken: token})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     403   {object}  handlers.ErrorResponse  "Email not verified"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TokenResponse{AccessToken: token})
}

// Verify godoc
// @ID          verifyEmail
// @Summary     Verify an email address
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.VerifyRequest  true  "Verification token from the email link"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Unknown or used token"
// @Router      /auth/verify [post]
func (h *Handlers) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token is required")
		return
	}
	if err := h.auth.Verify(c.Request.Context(), strings.TrimSpace(req.Token)); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: msgVerified})
}

// SendVerification godoc
// @ID          sendVerification
// @Summary     Re-send the verification email
// @Description Always answers 202 so that registered addresses cannot be discovered.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SendVerificationRequest  true  "Account email"
// @Success     202   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /auth/send-verification [post]
func (h *Handlers) SendVerification(c *gin.Context) {
	var req SendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid email is required")
		return
	}
	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusAccepted, MessageResponse{Message: msgVerificationSent})
}

// Me godoc
// @ID          me
// @Summary     Current account
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Profile
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	uid, authed := principal(c)
	if !authed {
		return
	}
	p, err := h.auth.Me(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
