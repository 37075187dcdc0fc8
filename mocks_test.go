package auth_test

import (
	"context"

	"github.com/goliatone/go-router"
)

// routerContext is an alias so the embedded field below is not named
// Context, which would collide with the Context() method.
type routerContext = router.Context

// mockContext implements the slice of router.Context the auth surface
// touches. The embedded interface panics on anything unimplemented, which
// keeps the fake honest.
type mockContext struct {
	routerContext

	ctx        context.Context
	HTTPMethod string
	Params     map[string]string
	QueryVals  map[string]string
	FormVals   map[string]string
	CookieVals map[string]string
	LocalsMock map[any]any
	ClientIP   string
	URL        string

	// BindFunc feeds request bodies into handlers
	BindFunc func(any) error

	StatusCode   int
	JSONBody     any
	RedirectedTo string
	SentHeaders  map[string]string
	SetCookies   []*router.Cookie
	NextCalled   bool
}

func newMockContext() *mockContext {
	return &mockContext{
		ctx:         context.Background(),
		HTTPMethod:  "GET",
		Params:      map[string]string{},
		QueryVals:   map[string]string{},
		FormVals:    map[string]string{},
		CookieVals:  map[string]string{},
		LocalsMock:  map[any]any{},
		ClientIP:    "203.0.113.7",
		URL:         "/auth/test",
		SentHeaders: map[string]string{},
	}
}

func (m *mockContext) Context() context.Context       { return m.ctx }
func (m *mockContext) SetContext(ctx context.Context) { m.ctx = ctx }
func (m *mockContext) Method() string                 { return m.HTTPMethod }
func (m *mockContext) IP() string                     { return m.ClientIP }
func (m *mockContext) OriginalURL() string            { return m.URL }

func (m *mockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *mockContext) Param(name string, defaultValue ...string) string {
	if v, ok := m.Params[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *mockContext) Query(name string, defaultValue ...string) string {
	if v, ok := m.QueryVals[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *mockContext) FormValue(name string, defaultValue ...string) string {
	if v, ok := m.FormVals[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *mockContext) Cookies(name string, defaultValue ...string) string {
	if v, ok := m.CookieVals[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *mockContext) Cookie(cookie *router.Cookie) {
	m.SetCookies = append(m.SetCookies, cookie)
}

func (m *mockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.LocalsMock[key] = value[0]
		return value[0]
	}
	return m.LocalsMock[key]
}

func (m *mockContext) GetString(key string, def string) string {
	if v, ok := m.LocalsMock[key].(string); ok {
		return v
	}
	return def
}

func (m *mockContext) Bind(v any) error {
	if m.BindFunc != nil {
		return m.BindFunc(v)
	}
	return nil
}

func (m *mockContext) JSON(code int, v any) error {
	m.StatusCode = code
	m.JSONBody = v
	return nil
}

func (m *mockContext) Redirect(path string, status ...int) error {
	m.RedirectedTo = path
	if len(status) > 0 {
		m.StatusCode = status[0]
	}
	return nil
}

func (m *mockContext) SetHeader(key, val string) router.Context {
	m.SentHeaders[key] = val
	return m
}

// responseCookie returns the last cookie written under name.
func (m *mockContext) responseCookie(name string) *router.Cookie {
	for i := len(m.SetCookies) - 1; i >= 0; i-- {
		if m.SetCookies[i].Name == name {
			return m.SetCookies[i]
		}
	}
	return nil
}
