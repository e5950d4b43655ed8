package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/xpcamp/apps/api/echo"
	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/user"
	apptest "github.com/trezcool/xpcamp/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func setup(t *testing.T) (*apptest.App, *echoapi.Server) {
	app := apptest.NewApp(t)
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       app.Conf,
		Logger:     app.Logger,
		UserSvc:    app.Users,
		Ledger:     app.Ledger,
		StoreSvc:   app.Store,
		Validate:   app.Validate,
		Translator: app.Translator,
		Gatherer:   app.Registry,
	})
	return app, srv
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
	extra    interface{}
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

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := echoapi.GetUserClaims(conf, usr)
	token, err := echoapi.GenerateToken(conf, claims)
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

// checkCodeAndData compares the response body only when the test expects some data.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal() failed! body %s; err %v", rec.Body.String(), err)
	}
}

// ids extracts the "id" (or "student_id") of every object of a JSON list response.
func ids(t *testing.T, rec *httptest.ResponseRecorder) []string {
	var objs []map[string]interface{}
	decode(t, rec, &objs)
	res := make([]string, 0, len(objs))
	for _, obj := range objs {
		id, ok := obj["id"].(string)
		if !ok {
			id, _ = obj["student_id"].(string)
		}
		res = append(res, id)
	}
	return res
}

// assertFieldErrors checks that a 400 response reports errors on exactly `fields`.
func assertFieldErrors(t *testing.T, rec *httptest.ResponseRecorder, fields ...string) {
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
	var errs map[string]string
	decode(t, rec, &errs)
	got := make([]string, 0, len(errs))
	for fld := range errs {
		got = append(got, fld)
	}
	assert.ElementsMatch(t, fields, got)
}
