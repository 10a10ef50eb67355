package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/nazorat/apps/api/echo"
	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
	"github.com/trezcool/nazorat/storage/database/inmem"
	"github.com/trezcool/nazorat/tests"
)

const pwd = "Xk7#mVq2pL"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	echoapi.Server
	conf   *core.Config
	users  user.Repository
	seeder quiz.Seeder
}

func setup(t *testing.T, configure ...func(conf *core.Config)) app {
	db, err := inmemdb.Open()
	require.NoError(t, err)

	conf := testutil.NewConfig()
	for _, c := range configure {
		c(conf)
	}
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	usrRepo := inmemdb.NewUserRepository(db)
	return app{
		Server: echoapi.NewServer(echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    user.NewService(usrRepo),
			QuizSvc:    quiz.NewService(inmemdb.NewQuizRepository(db), conf, logger, validate),
			Validate:   validate,
			Translator: translator,
		}),
		conf:   conf,
		users:  usrRepo,
		seeder: inmemdb.NewQuizSeeder(db),
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (a app) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	a.ServeHTTP(rec, req)
	return rec
}

func (a app) getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(a.conf, echoapi.GetUserClaims(a.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err, "jsonBytesEqual() failed to compare") {
		assert.True(t, ok, "data = %s; wantData %s", rec.Body.String(), string(tt.wantData))
	}
}
