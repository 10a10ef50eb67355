package echoapi_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/nazorat/apps/api/echo"
	"github.com/trezcool/nazorat/core/user"
	"github.com/trezcool/nazorat/tests"
)

func Test_home(t *testing.T) {
	a := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	a.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func Test_userApi_login(t *testing.T) {
	a := setup(t)
	student := testutil.CreateUser(t, a.users, "Hero", "hero", "hero@test.cd", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, a.users, "N Dog", "ndog", "ndog@test.cd", pwd, []string{user.RoleStudent}, false) // 😂

	authFailed := marchallObj(t, httpErr{Error: "authentication failed"})
	login := func(uname, pass string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pass})
	}

	tests := []httpTest{
		{
			name: "Fields required", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{name: "Unknown user", body: login("nobody", pwd), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "Wrong password", body: login("hero", pwd+"!"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "Inactive user not allowed", body: login("ndog", pwd), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Login with username", body: login(" HERO ", pwd), wantCode: http.StatusOK},
		{name: "Login with email", body: login("hero@test.cd", pwd), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}

	usr, err := a.users.GetUserByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.True(t, usr.LastLogin.Valid)
}

func Test_userApi_refreshToken(t *testing.T) {
	a := setup(t)
	naughty := testutil.CreateUser(t, a.users, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false) // 😂
	student := testutil.CreateUser(t, a.users, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   strconv.Itoa(student.ID),
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * a.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsStudent:    student.IsStudent(),
		Roles:        student.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(a.conf, unrefreshableClaims)
	require.NoError(t, err)

	expiredClaims := echoapi.GetUserClaims(a.conf, student)
	expiredClaims.ExpiresAt = now.Add(-time.Minute).Unix()
	expiredToken, err := echoapi.GenerateToken(a.conf, expiredClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Expired token", token: expiredToken, wantCode: http.StatusUnauthorized},
		{name: "Inactive user not allowed", token: a.getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: a.getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_retrieveMe(t *testing.T) {
	a := setup(t)
	teacher := testutil.CreateUser(t, a.users, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	ghost := user.User{ID: 404, Username: "ghost", Roles: []string{user.RoleStudent}}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Deleted user", token: a.getToken(t, ghost), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})},
		{name: "Current user", token: a.getToken(t, teacher), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users/me"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.Equal(t, teacher.ID, usr.ID)
				assert.Equal(t, "teacher", usr.Username)
				assert.NotContains(t, rec.Body.String(), "password")
			}
		})
	}
}
