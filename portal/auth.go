package portal

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	portalcache "github.com/always-cache/portal-cache"
	"github.com/always-cache/portal-cache/record"
)

type LoginResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"msg"`
	ErrorCode int    `json:"error_code"`
}

// Login signs in with the portal and stores the session cookie it hands out.
func (c *Client) Login(ctx context.Context, regNo, password string) (LoginResult, error) {
	log := c.log.With().Str("call", "login").Str("regNo", regNo).Logger()
	log.Info().Msg("Authenticating student")

	ack, res, err := c.post(ctx, "login", portalcache.Request{
		URL:  c.url("/signin.php"),
		Form: url.Values{"regno": {regNo}, "passwd": {password}},
	}, c.loginTimeout)
	if err != nil {
		return LoginResult{}, err
	}

	cookie, found := res.Cookie(c.cookie)
	if ack.ErrorCode != 0 || !found || cookie.Value == "" {
		msg := ack.MessageOr("Unknown response message")
		log.Warn().Str("msg", msg).Msg("Authentication failed")
		return LoginResult{}, fail(http.StatusUnauthorized, msg)
	}
	if err := c.session.SetToken(cookie.Value); err != nil {
		// the login itself succeeded; the caller still gets the session id
		log.Error().Err(err).Msg("Failed to persist session token")
	} else {
		log.Info().Msg("Session token saved")
	}
	return LoginResult{
		SessionID: cookie.Value,
		Message:   ack.MessageOr("Unknown response message"),
		ErrorCode: ack.ErrorCode,
	}, nil
}

type SessionStatus struct {
	Valid   bool   `json:"session_valid"`
	Message string `json:"message"`
}

func (c *Client) profileRequest(token string) portalcache.Request {
	return portalcache.Request{
		Method:  http.MethodPost,
		URL:     c.url("/src/profile.php"),
		Cookies: c.sessionCookies(token),
	}
}

// ValidateSession asks the portal whether the stored session is still active.
// The answer refreshes the cached profile entry, or evicts it when the session is gone.
func (c *Client) ValidateSession(ctx context.Context) (SessionStatus, error) {
	token, ok := c.session.Token()
	if !ok {
		c.log.Warn().Msg("Session validation skipped: no session token available")
		return SessionStatus{}, fail(http.StatusBadRequest, "No active session found. Please log in again.")
	}
	return c.validate(ctx, token)
}

func (c *Client) validate(ctx context.Context, token string) (SessionStatus, error) {
	_, _, err := fetchRecord(ctx, c, read[record.Profile]{
		call: "validate-session",
		req:  c.profileRequest(token),
		opts: []portalcache.Option{
			portalcache.WithRefetch(true),
			portalcache.WithTimeout(c.loginTimeout),
		},
		decode:        record.DecodeProfile,
		invalidJSON:   fail(http.StatusUnauthorized, "Session expired or invalid."),
		invalidRecord: fail(http.StatusUnauthorized, "Session expired or invalid."),
	})
	var statusErr *portalcache.StatusError
	if errors.As(err, &statusErr) {
		return SessionStatus{}, &Error{
			Status:  http.StatusBadRequest,
			Message: "Failed to validate session (non-200 response).",
			Err:     err,
		}
	}
	if err != nil {
		return SessionStatus{}, err
	}
	c.log.Info().Msg("Session is active")
	return SessionStatus{Valid: true, Message: "Session is active"}, nil
}

type LogoutResult struct {
	SessionID string `json:"phpsessid"`
	Message   string `json:"message"`
}

// Logout ends the upstream session. The token and the cache are only
// cleared once the portal confirms the session is no longer valid.
func (c *Client) Logout(ctx context.Context) (LogoutResult, error) {
	token, ok := c.session.Token()
	if !ok {
		c.log.Warn().Msg("Logout skipped: no session token available")
		return LogoutResult{}, fail(http.StatusBadRequest, "No active session found. Cannot logout.")
	}
	c.log.Info().Msg("Logout initiated")

	_, err := c.pipeline.Fetch(ctx, portalcache.Request{
		Method:  http.MethodPost,
		URL:     c.url("/src/logout.php"),
		Cookies: c.sessionCookies(token),
	}, portalcache.Live(), portalcache.WithTimeout(c.loginTimeout))
	var statusErr *portalcache.StatusError
	if errors.As(err, &statusErr) {
		return LogoutResult{}, &Error{
			Status:  http.StatusBadRequest,
			Message: "Logout request failed with non-200 response",
			Err:     err,
		}
	} else if err != nil {
		return LogoutResult{}, c.upstreamError("logout", err)
	}

	if status, err := c.validate(ctx, token); err == nil && status.Valid {
		c.log.Warn().Msg("Logout unsuccessful: session still valid")
		return LogoutResult{}, fail(http.StatusBadRequest, "Session still active. Logout not confirmed.")
	}

	if err := c.session.ClearToken(); err != nil {
		c.log.Error().Err(err).Msg("Failed to remove session token")
	}
	if err := c.pipeline.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("Failed to clear cache after logout")
	}
	c.log.Info().Msg("Logout successful")
	return LogoutResult{SessionID: token, Message: "Logout successful"}, nil
}

type ResetResult struct {
	Mobile string `json:"mobile"`
	Status string `json:"status"`
}

// SendResetOTP asks the portal to text a password reset code to mobile.
func (c *Client) SendResetOTP(ctx context.Context, mobile string) (ResetResult, error) {
	c.log.Info().Str("mobile", mobile).Msg("Sending password reset OTP")
	ack, _, err := c.post(ctx, "send-otp", portalcache.Request{
		URL:  c.url("/forgot-password.php"),
		Form: url.Values{"mobile": {mobile}},
	}, c.loginTimeout)
	if err != nil {
		return ResetResult{}, err
	}
	if !ack.Success() {
		msg := ack.MessageOr("Failed to send OTP")
		c.log.Warn().Str("error", msg).Msg("OTP not sent")
		return ResetResult{}, fail(http.StatusBadRequest, msg)
	}
	return ResetResult{Mobile: mobile, Status: "OTP sent"}, nil
}

// ResetPassword sets a new password using the code sent by SendResetOTP.
func (c *Client) ResetPassword(ctx context.Context, mobile, otp, password string) (ResetResult, error) {
	c.log.Info().Str("mobile", mobile).Msg("Resetting password")
	ack, _, err := c.post(ctx, "reset-password", portalcache.Request{
		URL:  c.url("/resetpassword.php"),
		Form: url.Values{"mobile": {mobile}, "otp": {otp}, "password": {password}},
	}, c.loginTimeout)
	if err != nil {
		return ResetResult{}, err
	}
	if !ack.Success() {
		msg := ack.MessageOr("Failed to reset password")
		c.log.Warn().Str("error", msg).Msg("Password reset failed")
		return ResetResult{}, fail(http.StatusBadRequest, msg)
	}
	return ResetResult{Mobile: mobile, Status: "Password reset successful"}, nil
}

type Message struct {
	Message string `json:"message"`
}

func (c *Client) passwordRequest(token, action, password string) portalcache.Request {
	return portalcache.Request{
		URL:     c.url("/src/chngPassword.php"),
		Params:  url.Values{"action": {action}},
		Form:    url.Values{"passwd": {password}},
		Cookies: c.sessionCookies(token),
	}
}

// CheckPassword verifies the current password of the logged in student.
func (c *Client) CheckPassword(ctx context.Context, password string) (Message, error) {
	token, e := c.token("check-password")
	if e != nil {
		return Message{}, e
	}
	ack, _, err := c.post(ctx, "check-password", c.passwordRequest(token, "chkUser", password), c.loginTimeout)
	if err != nil {
		return Message{}, err
	}
	switch {
	case ack.Success() && ack.ErrorCode == 0:
		return Message{Message: "Password is correct."}, nil
	case ack.Status == "failure" && ack.ErrorCode == -1:
		return Message{}, fail(http.StatusBadRequest, "Incorrect password.")
	default:
		c.log.Warn().Str("status", ack.Status).Int("errorCode", ack.ErrorCode).Msg("Unexpected response format")
		return Message{}, fail(http.StatusBadGateway, "Unexpected response format.")
	}
}

// UpdatePassword changes the password of the logged in student.
func (c *Client) UpdatePassword(ctx context.Context, password string) (Message, error) {
	token, e := c.token("update-password")
	if e != nil {
		return Message{}, e
	}
	ack, _, err := c.post(ctx, "update-password", c.passwordRequest(token, "updatePassword", password), c.loginTimeout)
	if err != nil {
		return Message{}, err
	}
	if !ack.Success() || ack.ErrorCode != 0 {
		msg := ack.MessageOr("Failed to update password.")
		c.log.Warn().Str("msg", msg).Msg("Password update failed")
		return Message{}, fail(http.StatusBadRequest, msg)
	}
	c.log.Info().Msg("Password updated")
	return Message{Message: ack.MessageOr("Password updated successfully.")}, nil
}
