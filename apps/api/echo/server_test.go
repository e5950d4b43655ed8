package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_metrics(t *testing.T) {
	app, srv := setup(t)
	student := app.CreateStudent(t, "Amy Pond", "amy")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	app.GrantXP(t, student.ID, 10, teacher.ID)
	it := app.CreateItem(t, "Pencil", 4, 1, true)
	if _, err := app.Store.Purchase(context.Background(), student.ID, it.ID); err != nil {
		t.Fatalf("Purchase() failed: %v", err)
	}

	req, rec := newRequest(http.MethodGet, "/metrics")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"xpcamp_xp_grants_total 1",
		"xpcamp_store_purchases_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("failed! metrics do not contain %q", want)
		}
	}
}

func Test_trailingSlash(t *testing.T) {
	app, srv := setup(t)
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/me/", getToken(t, app.Conf, teacher))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
