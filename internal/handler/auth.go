package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/access"
	"github.com/opustrack/opustrack/internal/config"
	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/utils"
)

// RefreshCookie carries the refresh token of a cookie session. It is only
// sent to the auth endpoints.
const RefreshCookie = "opustrack_refresh"

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
	Access *access.Table
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, tbl *access.Table) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Access: tbl}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type passwordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// profile is the user as the dashboard's client-side store holds it.
type profile struct {
	ID          uint64  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	RoleID      uint8   `json:"role_id"`
	Role        string  `json:"role"`
	DefaultPath string  `json:"default_path"`
	VICID       *uint64 `json:"vic_id"`
}

type authResp struct {
	User    profile   `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func profileOf(u *model.User) profile {
	return profile{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		RoleID:      u.RoleID,
		Role:        u.RoleName,
		DefaultPath: u.DefaultPath,
		VICID:       u.VICID,
	}
}

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountDisabled    = errors.New("account disabled")
)

// authenticate checks email and password and returns the active user.
func (h *AuthHandler) authenticate(c echo.Context, req loginReq) (*model.User, error) {
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return nil, errInvalidCredentials
	}
	if !u.Active {
		return nil, errAccountDisabled
	}
	return u, nil
}

// issue signs a new access token and stores a new refresh token for u.
func (h *AuthHandler) issue(c echo.Context, u *model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, identityOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    profileOf(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

func (h *AuthHandler) loginError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, errAccountDisabled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}
	return respondError(c, err, "user")
}

func bindLogin(c echo.Context) (loginReq, bool) {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return req, false
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	return req, req.Email != "" && req.Password != ""
}

// Login: verify credentials and return a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	req, ok := bindLogin(c)
	if !ok {
		return badRequest(c, "email/password required")
	}
	u, err := h.authenticate(c, req)
	if err != nil {
		return h.loginError(c, err)
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return respondError(c, err, "token")
	}
	return c.JSON(http.StatusOK, resp)
}

// rotate validates a raw refresh token, revokes it and issues a new pair.
// Refresh tokens of deactivated users are refused.
func (h *AuthHandler) rotate(c echo.Context, raw string) (authResp, error) {
	hash := utils.HashRefreshRaw(raw)
	ctx, cancel := dbContext(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return authResp{}, err
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return authResp{}, err
	}
	if !u.Active {
		return authResp{}, repository.ErrNotFound
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return authResp{}, err
	}
	return h.issue(c, u)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	resp, err := h.rotate(c, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return respondError(c, err, "token")
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token WITHOUT rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return respondError(c, err, "token")
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.Active {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, identityOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, err, "token")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes either the refresh token in the body, or, when only a
// valid bearer is supplied, every refresh token of that user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var uid uint64
	if raw := middleware.TokenFromRequest(c, ""); raw != "" {
		if cl, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw); err == nil {
			uid, _ = cl.UserID()
		}
	}
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := dbContext(c)
	defer cancel()

	switch {
	case refreshToken != "":
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return respondError(c, err, "token")
		}
	case uid != 0:
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return respondError(c, err, "token")
		}
	default:
		return badRequest(c, "provide Authorization header or refresh_token")
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- cookie session -----

func (h *AuthHandler) setSessionCookies(c echo.Context, resp authResp) {
	c.SetCookie(&http.Cookie{
		Name:     h.Cfg.SessionCookie,
		Value:    resp.Access.Token,
		Path:     "/",
		Expires:  resp.Access.Expires,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    resp.Refresh.Token,
		Path:     "/v1/auth",
		Expires:  resp.Refresh.Expires,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	for _, ck := range []struct{ name, path string }{{h.Cfg.SessionCookie, "/"}, {RefreshCookie, "/v1/auth"}} {
		c.SetCookie(&http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   h.Cfg.CookieSecure,
		})
	}
}

// sessionResp is what cookie clients get back: no raw tokens.
type sessionResp struct {
	User     profile   `json:"user"`
	Expires  time.Time `json:"expires"`
	Redirect string    `json:"redirect"`
}

func (h *AuthHandler) sessionBody(resp authResp) sessionResp {
	redirect := resp.User.DefaultPath
	if h.Access != nil {
		redirect = h.Access.Decide(access.LoginPath, &access.Session{
			RoleID:      resp.User.RoleID,
			DefaultPath: resp.User.DefaultPath,
		}).Redirect
	}
	return sessionResp{User: resp.User, Expires: resp.Access.Expires, Redirect: redirect}
}

// SessionLogin is Login for the web dashboard: tokens travel as HttpOnly
// cookies and the body says where to go next.
func (h *AuthHandler) SessionLogin(c echo.Context) error {
	req, ok := bindLogin(c)
	if !ok {
		return badRequest(c, "email/password required")
	}
	u, err := h.authenticate(c, req)
	if err != nil {
		return h.loginError(c, err)
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return respondError(c, err, "token")
	}
	h.setSessionCookies(c, resp)
	return c.JSON(http.StatusOK, h.sessionBody(resp))
}

// SessionRefresh rotates the refresh cookie and renews the session cookie.
func (h *AuthHandler) SessionRefresh(c echo.Context) error {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		return unauthorized(c)
	}
	resp, err := h.rotate(c, ck.Value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.clearSessionCookies(c)
			return unauthorized(c)
		}
		return respondError(c, err, "token")
	}
	h.setSessionCookies(c, resp)
	return c.JSON(http.StatusOK, h.sessionBody(resp))
}

// SessionLogout revokes the refresh cookie (if any) and clears both cookies.
func (h *AuthHandler) SessionLogout(c echo.Context) error {
	if ck, err := c.Cookie(RefreshCookie); err == nil && ck.Value != "" {
		ctx, cancel := dbContext(c)
		defer cancel()
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(ck.Value)); err != nil {
			return respondError(c, err, "token")
		}
	}
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// ----- authenticated -----

// Me returns the stored profile of the caller.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err, "user")
	}
	if !u.Active {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}
	return c.JSON(http.StatusOK, profileOf(u))
}

// ChangePassword requires the current password, stores the new one and
// signs the user out everywhere.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" {
		return badRequest(c, "current_password and new_password required")
	}
	if err := utils.CheckPassword(req.NewPassword); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err, "user")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err := h.Users.SetPassword(ctx, uid, req.NewPassword, h.Cfg.BcryptCost); err != nil {
		return respondError(c, err, "user")
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return respondError(c, err, "token")
	}
	return c.NoContent(http.StatusNoContent)
}

// AccessCheck answers the dashboard's "may I render this page" question.
// It runs behind OptionalAuth: no token means no session.
func (h *AuthHandler) AccessCheck(c echo.Context) error {
	path := strings.TrimSpace(c.QueryParam("path"))
	if path == "" || !strings.HasPrefix(path, "/") {
		return badRequest(c, "path must be an absolute path")
	}
	var s *access.Session
	if cl := middleware.ClaimsFrom(c); cl != nil {
		s = &access.Session{RoleID: cl.RoleID, DefaultPath: cl.DefaultPath}
	}
	return c.JSON(http.StatusOK, h.Access.Decide(path, s))
}
