package server_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-user-admin/internal/config"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/internal/utils"
	"github.com/jrsteele09/go-user-admin/ratelimit"
	"github.com/jrsteele09/go-user-admin/server"
	"github.com/jrsteele09/go-user-admin/sessions"
	"github.com/jrsteele09/go-user-admin/users"
	fakeuserrepo "github.com/jrsteele09/go-user-admin/users/repofake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testUsername = "alice"
	testPassword = "Secr3t!"
)

var csrfFieldPattern = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

// switchableRepo fails every call with ErrStoreUnavailable while down is set
type switchableRepo struct {
	users.Repo
	down bool
}

func (r *switchableRepo) err() error {
	if r.down {
		return apperrors.Unavailable(errors.New("connection refused"))
	}
	return nil
}

func (r *switchableRepo) Create(ctx context.Context, u *users.User) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repo.Create(ctx, u)
}

func (r *switchableRepo) Update(ctx context.Context, u *users.User) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repo.Update(ctx, u)
}

func (r *switchableRepo) Delete(ctx context.Context, id string) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repo.Delete(ctx, id)
}

func (r *switchableRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := r.err(); err != nil {
		return nil, err
	}
	return r.Repo.GetByID(ctx, id)
}

func (r *switchableRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	if err := r.err(); err != nil {
		return nil, err
	}
	return r.Repo.GetByUsername(ctx, username)
}

func (r *switchableRepo) List(ctx context.Context) ([]*users.User, error) {
	if err := r.err(); err != nil {
		return nil, err
	}
	return r.Repo.List(ctx)
}

type setupOptions struct {
	env          map[string]string
	healthChecks map[string]server.HealthCheck
}

// testFixture holds all test dependencies
type testFixture struct {
	now      time.Time
	repo     *switchableRepo
	users    *users.Service
	sessions *sessions.InMemoryStore
	limiter  *ratelimit.InMemoryLimiter
	server   *server.Server
}

func (f *testFixture) Now() time.Time { return f.now }

func (f *testFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func setEnv(t *testing.T, opts setupOptions) {
	t.Helper()
	env := map[string]string{
		"SESSION_SECRET": testSecret,
		"ENV":            "TEST",
		"ADMIN_USERNAME": "",
		"ADMIN_PASSWORD": "",
		"TRUST_PROXY":    "",
		"SESSION_TTL":    "",
		"APP_NAME":       "",
	}
	for k, v := range opts.env {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

// setupTestFixture creates a server backed by in-memory stores and a controllable clock
func setupTestFixture(t *testing.T, opts setupOptions) *testFixture {
	t.Helper()
	setEnv(t, opts)

	f := &testFixture{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	f.repo = &switchableRepo{Repo: fakeuserrepo.NewFakeUserRepo()}

	var err error
	f.users, err = users.NewService(f.repo, users.WithHashCost(bcrypt.MinCost), users.WithNowTime(f.Now))
	require.NoError(t, err)
	f.sessions = sessions.NewInMemoryStoreWithClock(f.Now)
	f.limiter, err = ratelimit.NewInMemoryLimiter(ratelimit.Config{Limit: 5, Window: time.Minute}, ratelimit.WithNowTime(f.Now))
	require.NoError(t, err)

	f.server, err = server.New(config.New(), server.Dependencies{
		Users:        f.users,
		Sessions:     f.sessions,
		LoginLimiter: f.limiter,
		HealthChecks: opts.healthChecks,
	}, server.WithNowTime(f.Now))
	require.NoError(t, err)
	return f
}

func (f *testFixture) createUser(t *testing.T, username string) *users.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), users.CreateUser{Username: username, Password: testPassword})
	require.NoError(t, err)
	return u
}

// testClient keeps the session cookie between requests the way a browser would over https
type testClient struct {
	t          *testing.T
	handler    http.Handler
	cookie     *http.Cookie
	header     http.Header
	remoteAddr string
}

func (f *testFixture) newClient(t *testing.T) *testClient {
	return &testClient{t: t, handler: f.server, header: http.Header{}}
}

func (c *testClient) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if c.remoteAddr != "" {
		req.RemoteAddr = c.remoteAddr
	}
	if c.cookie != nil {
		req.AddCookie(&http.Cookie{Name: c.cookie.Name, Value: c.cookie.Value})
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name != sessions.CookieName {
			continue
		}
		if cookie.MaxAge < 0 || cookie.Value == "" {
			c.cookie = nil
			continue
		}
		c.cookie = cookie
	}
	return rec
}

func (c *testClient) get(target string) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.do(http.MethodGet, target, nil)
}

func (c *testClient) post(target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.do(http.MethodPost, target, form)
}

// csrfToken loads page and returns the token embedded in its form
func (c *testClient) csrfToken(page string) string {
	c.t.Helper()
	rec := c.get(page)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	m := csrfFieldPattern.FindStringSubmatch(rec.Body.String())
	require.Len(c.t, m, 2, "no csrf field on %s", page)
	return m[1]
}

func (c *testClient) login(username, password string) *httptest.ResponseRecorder {
	c.t.Helper()
	token := c.csrfToken(server.RouteLogin)
	return c.post(server.RouteLogin, url.Values{
		"username": {username},
		"password": {password},
		"_csrf":    {token},
	})
}

func requireRedirect(t *testing.T, rec *httptest.ResponseRecorder, prefix string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), prefix),
		"location %q does not start with %q", rec.Header().Get("Location"), prefix)
}

func TestRegisterLoginListScenario(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	c := f.newClient(t)

	token := c.csrfToken(server.RouteRegister)
	rec := c.post(server.RouteRegister, url.Values{
		"username": {testUsername},
		"password": {testPassword},
		"_csrf":    {token},
	})
	requireRedirect(t, rec, server.RouteLogin+"?success=")

	anonymousCookie := c.cookie.Value
	rec = c.login(testUsername, testPassword)
	requireRedirect(t, rec, server.RouteUsers)
	require.NotEqual(t, anonymousCookie, c.cookie.Value, "session must be rotated at login")

	rec = c.get(server.RouteUsers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<td>alice</td>")
	require.Contains(t, rec.Body.String(), `<span class="whoami">alice</span>`)

	t.Run("second registration is rejected", func(t *testing.T) {
		other := f.newClient(t)
		token := other.csrfToken(server.RouteRegister)
		rec := other.post(server.RouteRegister, url.Values{
			"username": {testUsername},
			"password": {testPassword},
			"_csrf":    {token},
		})
		requireRedirect(t, rec, server.RouteRegister+"?error=")
		require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("That username is already taken"))
	})

	t.Run("old anonymous cookie is no longer valid", func(t *testing.T) {
		stale := f.newClient(t)
		stale.cookie = &http.Cookie{Name: sessions.CookieName, Value: anonymousCookie}
		requireRedirect(t, stale.get(server.RouteUsers), server.RouteLogin+"?error=")
	})

	t.Run("logout ends the session", func(t *testing.T) {
		loggedIn := c.cookie.Value
		rec := c.get(server.RouteLogout)
		requireRedirect(t, rec, server.RouteLogin)
		require.Nil(t, c.cookie)

		c.cookie = &http.Cookie{Name: sessions.CookieName, Value: loggedIn}
		requireRedirect(t, c.get(server.RouteUsers), server.RouteLogin+"?error=")
	})
}

func TestAccessGuard(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	c := f.newClient(t)

	for _, path := range []string{"/", server.RouteUsers, server.RouteUsersNew, "/users/edit/some-id"} {
		requireRedirect(t, c.get(path), server.RouteLogin+"?error=")
	}

	token := c.csrfToken(server.RouteLogin)
	rec := c.post("/users/delete/some-id", url.Values{"_csrf": {token}})
	requireRedirect(t, rec, server.RouteLogin+"?error=")

	f.createUser(t, testUsername)
	requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)
	requireRedirect(t, c.get("/"), server.RouteUsers)
	require.Equal(t, http.StatusOK, c.get(server.RouteUsersNew).Code)

	t.Run("session expires", func(t *testing.T) {
		f.advance(31 * time.Minute)
		requireRedirect(t, c.get(server.RouteUsers), server.RouteLogin+"?error=")
	})
}

func TestLoginFailures(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	c := f.newClient(t)
	f.createUser(t, testUsername)

	_, err := f.users.Create(context.Background(), users.CreateUser{Username: "mallory", Password: testPassword, Blocked: true})
	require.NoError(t, err)

	rec := c.login(testUsername, "Wrong1!")
	requireRedirect(t, rec, server.RouteLogin+"?error=")
	require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("Invalid username or password"))

	rec = c.login("nobody", testPassword)
	require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("Invalid username or password"))

	rec = c.login("mallory", testPassword)
	require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("This account has been blocked"))

	requireRedirect(t, c.get(server.RouteUsers), server.RouteLogin+"?error=")

	rec = c.get(server.RouteLogin + "?error=" + url.QueryEscape("<script>x</script>"))
	require.NotContains(t, rec.Body.String(), "<script>x</script>")
	require.Contains(t, rec.Body.String(), "&lt;script&gt;x&lt;/script&gt;")
}

func TestFailedFormsKeepUsername(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	f.createUser(t, testUsername)
	c := f.newClient(t)

	rec := c.login(testUsername, "Wrong1!")
	requireRedirect(t, rec, server.RouteLogin+"?error=")
	require.Contains(t, rec.Header().Get("Location"), "username="+testUsername)
	require.Contains(t, c.get(rec.Header().Get("Location")).Body.String(), `value="`+testUsername+`"`)

	token := c.csrfToken(server.RouteRegister)
	rec = c.post(server.RouteRegister, url.Values{"username": {"bob"}, "password": {"weak"}, "_csrf": {token}})
	requireRedirect(t, rec, server.RouteRegister+"?error=")
	require.Contains(t, c.get(rec.Header().Get("Location")).Body.String(), `value="bob"`)

	requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)
	token = c.csrfToken(server.RouteUsersNew)
	rec = c.post(server.RouteUsers, url.Values{"username": {"carol"}, "password": {"weak"}, "_csrf": {token}})
	requireRedirect(t, rec, server.RouteUsersNew+"?error=")
	require.Contains(t, c.get(rec.Header().Get("Location")).Body.String(), `value="carol"`)

	rec = c.get(server.RouteLogin + "?username=" + url.QueryEscape(`"><script>x</script>`))
	require.NotContains(t, rec.Body.String(), `"><script>x</script>`)
}

func TestCSRFProtection(t *testing.T) {
	form := func(token string) url.Values {
		v := url.Values{"username": {testUsername}, "password": {testPassword}}
		if token != "" {
			v.Set("_csrf", token)
		}
		return v
	}

	t.Run("no session", func(t *testing.T) {
		c := setupTestFixture(t, setupOptions{}).newClient(t)
		require.Equal(t, http.StatusForbidden, c.post(server.RouteRegister, form("")).Code)
	})

	t.Run("token from another session", func(t *testing.T) {
		f := setupTestFixture(t, setupOptions{})
		foreign := f.newClient(t).csrfToken(server.RouteRegister)

		c := f.newClient(t)
		c.csrfToken(server.RouteRegister)
		require.Equal(t, http.StatusForbidden, c.post(server.RouteRegister, form(foreign)).Code)
	})

	t.Run("header token accepted", func(t *testing.T) {
		c := setupTestFixture(t, setupOptions{}).newClient(t)
		token := c.csrfToken(server.RouteRegister)
		c.header.Set("X-CSRF-Token", token)
		requireRedirect(t, c.post(server.RouteRegister, form("")), server.RouteLogin+"?success=")
	})

	t.Run("token is rotated with the session", func(t *testing.T) {
		f := setupTestFixture(t, setupOptions{})
		f.createUser(t, testUsername)
		c := f.newClient(t)
		before := c.csrfToken(server.RouteLogin)
		requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)
		after := c.csrfToken(server.RouteUsersNew)
		require.NotEqual(t, before, after)

		rec := c.post(server.RouteUsers, url.Values{"username": {"bob"}, "password": {testPassword}, "_csrf": {before}})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	tests := []struct {
		name     string
		loggedIn bool
		page     string
		target   func(bob *users.User) string
		form     url.Values
		success  string
		applied  func(t *testing.T, f *testFixture, bob *users.User)
	}{
		{
			name:    "login",
			page:    server.RouteLogin,
			target:  func(*users.User) string { return server.RouteLogin },
			form:    url.Values{"username": {"bob"}, "password": {testPassword}},
			success: server.RouteUsers,
		},
		{
			name:    "register",
			page:    server.RouteRegister,
			target:  func(*users.User) string { return server.RouteRegister },
			form:    url.Values{"username": {"carol"}, "password": {testPassword}},
			success: server.RouteLogin + "?success=",
			applied: func(t *testing.T, f *testFixture, _ *users.User) {
				_, err := f.users.FindByUsername(context.Background(), "carol")
				require.NoError(t, err)
			},
		},
		{
			name:     "delete user",
			loggedIn: true,
			page:     server.RouteUsers,
			target:   func(bob *users.User) string { return "/users/delete/" + bob.ID },
			form:     url.Values{},
			success:  server.RouteUsers + "?success=",
			applied: func(t *testing.T, f *testFixture, bob *users.User) {
				_, err := f.users.Get(context.Background(), bob.ID)
				require.ErrorIs(t, err, apperrors.ErrNotFound)
			},
		},
		{
			name:     "update user",
			loggedIn: true,
			page:     "/users/edit/{id}",
			target:   func(bob *users.User) string { return "/users/update/" + bob.ID },
			form:     url.Values{"username": {"robert"}},
			success:  server.RouteUsers + "?success=",
			applied: func(t *testing.T, f *testFixture, bob *users.User) {
				u, err := f.users.Get(context.Background(), bob.ID)
				require.NoError(t, err)
				require.Equal(t, "robert", u.Username)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, setupOptions{})
			f.createUser(t, testUsername)
			bob := f.createUser(t, "bob")
			c := f.newClient(t)
			if tt.loggedIn {
				requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)
			}
			page := strings.Replace(tt.page, "{id}", bob.ID, 1)
			token := c.csrfToken(page)

			without := url.Values{}
			for k, v := range tt.form {
				without[k] = v
			}
			require.Equal(t, http.StatusForbidden, c.post(tt.target(bob), without).Code, "missing token")

			without.Set("_csrf", "not-the-token")
			require.Equal(t, http.StatusForbidden, c.post(tt.target(bob), without).Code, "wrong token")

			require.Equal(t, "bob", mustGet(t, f, bob.ID).Username, "rejected requests change nothing")

			with := url.Values{"_csrf": {token}}
			for k, v := range tt.form {
				with[k] = v
			}
			requireRedirect(t, c.post(tt.target(bob), with), tt.success)
			if tt.applied != nil {
				tt.applied(t, f, bob)
			}
		})
	}
}

func mustGet(t *testing.T, f *testFixture, id string) *users.User {
	t.Helper()
	u, err := f.users.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestLoginRateLimit(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	f.createUser(t, testUsername)
	c := f.newClient(t)

	for i := 1; i <= 5; i++ {
		rec := c.login(testUsername, "Wrong1!")
		requireRedirect(t, rec, server.RouteLogin+"?error=")
		require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}

	var logs bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&logs)
	defer func() { log.Logger = orig }()

	rec := c.login(testUsername, testPassword)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, logs.String(), `"error":"rate limited"`)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.Contains(t, rec.Body.String(), "Too many login attempts. Try again in 1 minute.")

	t.Run("other clients are unaffected", func(t *testing.T) {
		other := f.newClient(t)
		other.remoteAddr = "198.51.100.7:4321"
		requireRedirect(t, other.login(testUsername, testPassword), server.RouteUsers)
	})

	t.Run("allowed after the window", func(t *testing.T) {
		f.advance(61 * time.Second)
		requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)
	})
}

func TestLoginRateLimit_TrustedProxy(t *testing.T) {
	f := setupTestFixture(t, setupOptions{env: map[string]string{"TRUST_PROXY": "true"}})

	c := f.newClient(t)
	c.header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	for i := 0; i < 5; i++ {
		requireRedirect(t, c.login("nobody", "Wrong1!"), server.RouteLogin+"?error=")
	}
	require.Equal(t, http.StatusTooManyRequests, c.login("nobody", "Wrong1!").Code)

	c.header.Set("X-Forwarded-For", "203.0.113.10")
	requireRedirect(t, c.login("nobody", "Wrong1!"), server.RouteLogin+"?error=")
}

func TestUserManagement(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	me := f.createUser(t, testUsername)
	bob := f.createUser(t, "bob")

	c := f.newClient(t)
	requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)

	t.Run("create", func(t *testing.T) {
		require.Equal(t, users.RoleUser, me.Role, "roles do not restrict user management")
		token := c.csrfToken(server.RouteUsersNew)
		rec := c.post(server.RouteUsers, url.Values{
			"username": {"carol"},
			"password": {testPassword},
			"role":     {"admin"},
			"_csrf":    {token},
		})
		requireRedirect(t, rec, server.RouteUsers+"?success=")

		carol, err := f.users.FindByUsername(context.Background(), "carol")
		require.NoError(t, err)
		require.True(t, carol.IsAdmin())

		rec = c.post(server.RouteUsers, url.Values{"username": {"dave"}, "password": {"weak"}, "_csrf": {token}})
		requireRedirect(t, rec, server.RouteUsersNew+"?error=")
	})

	t.Run("edit form", func(t *testing.T) {
		rec := c.get("/users/edit/" + bob.ID)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `value="bob"`)
		require.Contains(t, rec.Body.String(), `action="/users/update/`+bob.ID+`"`)

		requireRedirect(t, c.get("/users/edit/missing"), server.RouteUsers+"?error=")
	})

	t.Run("update", func(t *testing.T) {
		token := c.csrfToken(server.RouteUsersNew)
		rec := c.post("/users/update/"+bob.ID, url.Values{
			"username": {"robert"},
			"role":     {"user"},
			"blocked":  {"on"},
			"_csrf":    {token},
		})
		requireRedirect(t, rec, server.RouteUsers+"?success=")

		updated, err := f.users.Get(context.Background(), bob.ID)
		require.NoError(t, err)
		require.Equal(t, "robert", updated.Username)
		require.True(t, updated.Blocked)
		require.True(t, updated.CheckPassword(testPassword), "empty password field keeps the password")

		rec = c.post("/users/update/"+bob.ID, url.Values{"username": {testUsername}, "_csrf": {token}})
		requireRedirect(t, rec, "/users/edit/"+bob.ID+"?error=")

		rec = c.post("/users/update/missing", url.Values{"username": {"x-y-z"}, "_csrf": {token}})
		requireRedirect(t, rec, server.RouteUsers+"?error=")
	})

	t.Run("renaming yourself updates the session", func(t *testing.T) {
		token := c.csrfToken(server.RouteUsersNew)
		rec := c.post("/users/update/"+me.ID, url.Values{"username": {"alicia"}, "_csrf": {token}})
		requireRedirect(t, rec, server.RouteUsers+"?success=")
		require.Contains(t, c.get(server.RouteUsers).Body.String(), `<span class="whoami">alicia</span>`)
	})

	t.Run("delete twice", func(t *testing.T) {
		token := c.csrfToken(server.RouteUsersNew)
		rec := c.post("/users/delete/"+bob.ID, url.Values{"_csrf": {token}})
		requireRedirect(t, rec, server.RouteUsers+"?success=")

		rec = c.post("/users/delete/"+bob.ID, url.Values{"_csrf": {token}})
		requireRedirect(t, rec, server.RouteUsers+"?error=")
		require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("User not found"))

		_, err := f.users.Get(context.Background(), bob.ID)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("deleting yourself logs you out", func(t *testing.T) {
		token := c.csrfToken(server.RouteUsersNew)
		rec := c.post("/users/delete/"+me.ID, url.Values{"_csrf": {token}})
		requireRedirect(t, rec, server.RouteLogin+"?success=")
		require.Nil(t, c.cookie)
	})
}

func TestAccessGuard_RevokedAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked after login", func(t *testing.T) {
		f := setupTestFixture(t, setupOptions{})
		bob := f.createUser(t, "bob")
		c := f.newClient(t)
		requireRedirect(t, c.login("bob", testPassword), server.RouteUsers)
		token := c.csrfToken(server.RouteUsersNew)

		_, err := f.users.Update(ctx, bob.ID, users.UpdateUser{Blocked: utils.Ptr(true)})
		require.NoError(t, err)

		rec := c.post(server.RouteUsers, url.Values{
			"username": {"mallory"},
			"password": {testPassword},
			"role":     {"admin"},
			"_csrf":    {token},
		})
		requireRedirect(t, rec, server.RouteLogin+"?error=")
		require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("This account has been blocked"))
		require.Nil(t, c.cookie, "the session cookie is cleared")

		_, err = f.users.FindByUsername(ctx, "mallory")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		requireRedirect(t, c.get(server.RouteUsers), server.RouteLogin+"?error=")
	})

	t.Run("deleted after login", func(t *testing.T) {
		f := setupTestFixture(t, setupOptions{})
		bob := f.createUser(t, "bob")
		c := f.newClient(t)
		requireRedirect(t, c.login("bob", testPassword), server.RouteUsers)
		stale := c.cookie

		require.NoError(t, f.users.Delete(ctx, bob.ID))

		rec := c.get(server.RouteUsers)
		requireRedirect(t, rec, server.RouteLogin+"?error=")
		require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("Your account no longer exists"))
		require.Nil(t, c.cookie)

		c.cookie = stale
		requireRedirect(t, c.get(server.RouteUsers), server.RouteLogin+"?error="+url.QueryEscape("Please log in to continue"))
	})
}

func TestStoreUnavailable(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	f.createUser(t, testUsername)
	c := f.newClient(t)
	requireRedirect(t, c.login(testUsername, testPassword), server.RouteUsers)
	token := c.csrfToken(server.RouteUsersNew)

	f.repo.down = true

	require.Equal(t, http.StatusServiceUnavailable, c.get(server.RouteUsers).Code)
	require.Equal(t, http.StatusServiceUnavailable, c.get("/users/edit/any").Code)

	rec := c.post(server.RouteUsers, url.Values{"username": {"carol"}, "password": {testPassword}, "_csrf": {token}})
	requireRedirect(t, rec, server.RouteUsers+"?error=")
	require.Contains(t, rec.Header().Get("Location"), url.QueryEscape("temporarily unavailable"))
	require.NotNil(t, c.cookie, "an outage does not end the session")

	other := f.newClient(t)
	rec = other.login(testUsername, testPassword)
	requireRedirect(t, rec, server.RouteLogin+"?error=")

	f.repo.down = false
	require.Equal(t, http.StatusOK, c.get(server.RouteUsers).Code)
}

func TestSecurityHeadersAndCookie(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	c := f.newClient(t)

	rec := c.get(server.RouteLogin)
	require.Equal(t, http.StatusOK, rec.Code)

	h := rec.Header()
	require.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	require.Equal(t, "0", h.Get("X-XSS-Protection"))
	require.Contains(t, h.Get("Content-Security-Policy"), "frame-ancestors 'self'")
	require.Contains(t, h.Get("Strict-Transport-Security"), "max-age=")
	require.Equal(t, "no-store", h.Get("Cache-Control"))
	require.Empty(t, h.Get("X-Powered-By"))

	require.NotNil(t, c.cookie)
	require.True(t, c.cookie.HttpOnly)
	require.True(t, c.cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.cookie.SameSite)
	require.Equal(t, "/", c.cookie.Path)
	require.Equal(t, 30*60, c.cookie.MaxAge)

	t.Run("existing session is not reissued", func(t *testing.T) {
		rec := c.get(server.RouteRegister)
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("tampered cookie gets a new session", func(t *testing.T) {
		c.cookie = &http.Cookie{Name: sessions.CookieName, Value: c.cookie.Value + "x"}
		rec := c.get(server.RouteLogin)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Result().Cookies())
	})
}

func TestStaticFiles(t *testing.T) {
	f := setupTestFixture(t, setupOptions{})
	c := f.newClient(t)

	rec := c.get("/static/app.css")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Cache-Control"), "public")
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Nil(t, c.cookie, "static assets do not start sessions")

	require.Equal(t, http.StatusNotFound, c.get("/static/missing.css").Code)

	head := c.do(http.MethodHead, "/static/app.css", nil)
	require.Equal(t, http.StatusOK, head.Code)
	require.Equal(t, "text/css; charset=utf-8", head.Header().Get("Content-Type"))
	require.Zero(t, head.Body.Len())
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := setupTestFixture(t, setupOptions{healthChecks: map[string]server.HealthCheck{
			"database": func(context.Context) error { return nil },
		}})
		rec := f.newClient(t).get(server.RouteHealth)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok","components":{"database":"ok"}}`, rec.Body.String())
	})

	t.Run("degraded", func(t *testing.T) {
		f := setupTestFixture(t, setupOptions{healthChecks: map[string]server.HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
		}})
		rec := f.newClient(t).get(server.RouteHealth)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.JSONEq(t, `{"status":"degraded","components":{"database":"ok","redis":"unavailable"}}`, rec.Body.String())
	})
}

func TestNew_BootstrapAdmin(t *testing.T) {
	f := setupTestFixture(t, setupOptions{env: map[string]string{
		"ADMIN_USERNAME": "root",
		"ADMIN_PASSWORD": "Adm1nPass",
	}})

	admin, err := f.users.FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	require.True(t, admin.IsAdmin())

	_, err = server.New(config.New(), server.Dependencies{
		Users:        f.users,
		Sessions:     f.sessions,
		LoginLimiter: f.limiter,
	})
	require.NoError(t, err, "bootstrap is idempotent")

	list, err := f.users.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestNew_Failures(t *testing.T) {
	deps := func(t *testing.T) server.Dependencies {
		userService, err := users.NewService(fakeuserrepo.NewFakeUserRepo(), users.WithHashCost(bcrypt.MinCost))
		require.NoError(t, err)
		limiter, err := ratelimit.NewInMemoryLimiter(ratelimit.Config{Limit: 5, Window: time.Minute})
		require.NoError(t, err)
		return server.Dependencies{Users: userService, Sessions: sessions.NewInMemoryStore(), LoginLimiter: limiter}
	}

	t.Run("missing secret", func(t *testing.T) {
		setEnv(t, setupOptions{env: map[string]string{"SESSION_SECRET": ""}})
		_, err := server.New(config.New(), deps(t))
		require.ErrorIs(t, err, apperrors.ErrMissingSecret)
	})

	t.Run("weak bootstrap password", func(t *testing.T) {
		setEnv(t, setupOptions{env: map[string]string{"ADMIN_USERNAME": "root", "ADMIN_PASSWORD": "weak"}})
		_, err := server.New(config.New(), deps(t))
		require.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("missing dependencies", func(t *testing.T) {
		setEnv(t, setupOptions{})
		_, err := server.New(config.New(), server.Dependencies{})
		require.Error(t, err)
	})
}
