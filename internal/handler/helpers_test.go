package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/utils"
)

const testSecret = "test-secret"

// Events are published from a goroutine.
const (
	eventWait = time.Second
	tick      = 10 * time.Millisecond
)

func vicPtr(v uint64) *uint64 { return &v }

// claimsOf builds the claims Authenticate would have stored for u.
func claimsOf(u *model.User) *utils.Claims {
	cl := &utils.Claims{
		Name:        u.Name,
		Email:       u.Email,
		RoleID:      u.RoleID,
		Role:        u.RoleName,
		DefaultPath: u.DefaultPath,
		VICID:       u.VICID,
	}
	cl.Subject = strconv.FormatUint(u.ID, 10)
	return cl
}

// request describes one handler invocation.
type request struct {
	method string
	path   string
	body   string
	ctype  string
	claims *utils.Claims
	params map[string]string
	header map[string]string
	cookie []*http.Cookie
}

func newContext(t *testing.T, r request) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != "" {
		ct := r.ctype
		if ct == "" {
			ct = echo.MIMEApplicationJSON
		}
		req.Header.Set(echo.HeaderContentType, ct)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	for _, ck := range r.cookie {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(r.params) > 0 {
		names := make([]string, 0, len(r.params))
		values := make([]string, 0, len(r.params))
		for k, v := range r.params {
			names = append(names, k)
			values = append(values, v)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	if r.claims != nil {
		c.Set(middleware.ClaimsKey, r.claims)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m map[string]any
	decode(t, rec, &m)
	s, _ := m["error"].(string)
	return s
}

type listBody[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}
