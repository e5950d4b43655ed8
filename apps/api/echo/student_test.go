package echoapi_test

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/xpcamp/core/xp"
)

func Test_studentApi_query(t *testing.T) {
	app, srv := setup(t)
	amy := app.CreateStudent(t, "Amy Pond", "amy")
	bob := app.CreateStudent(t, "Bob Marley", "bob")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	app.GrantXP(t, bob.ID, 40, teacher.ID)
	app.GrantXP(t, amy.ID, 10, teacher.ID)
	teacherToken := getToken(t, app.Conf, teacher)

	tests := []struct {
		httpTest
		want []string
	}{
		{httpTest: httpTest{name: "Auth required", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}},
		{httpTest: httpTest{
			name: "Teacher required", path: "/v1/students", token: getToken(t, app.Conf, amy), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}},
		{httpTest: httpTest{name: "default ordering (name)", path: "/v1/students", token: teacherToken}, want: []string{amy.ID, bob.ID}},
		{httpTest: httpTest{name: "order by -available_xp", path: "/v1/students?ordering=-available_xp", token: teacherToken}, want: []string{bob.ID, amy.ID}},
		{httpTest: httpTest{name: "search=marley", path: "/v1/students?search=marley", token: teacherToken}, want: []string{bob.ID}},
		{httpTest: httpTest{name: "search (unknown)", path: "/v1/students?search=lol", token: teacherToken}, want: []string{}},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)

			if tt.want != nil {
				assert.Equal(t, tt.want, ids(t, rec))
			}
		})
	}
}

func Test_studentApi_leaderboard(t *testing.T) {
	app, srv := setup(t)
	amy := app.CreateStudent(t, "Amy Pond", "amy")
	bob := app.CreateStudent(t, "Bob Marley", "bob")
	cyd := app.CreateStudent(t, "Cyd Charisse", "cyd")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	app.GrantXP(t, cyd.ID, 30, teacher.ID)
	app.GrantXP(t, amy.ID, 10, teacher.ID)
	app.GrantXP(t, bob.ID, 10, teacher.ID)

	// spending does not change the ranking
	it := app.CreateItem(t, "Sticker", 25, 5, true)
	if _, err := app.Store.Purchase(context.Background(), cyd.ID, it.ID); err != nil {
		t.Fatalf("Purchase() failed: %v", err)
	}
	studentToken := getToken(t, app.Conf, bob)

	tests := []struct {
		httpTest
		want []string
	}{
		{httpTest: httpTest{name: "Auth required", path: "/v1/students/leaderboard", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}},
		{httpTest: httpTest{name: "student can see", path: "/v1/students/leaderboard", token: studentToken}, want: []string{cyd.ID, amy.ID, bob.ID}},
		{
			httpTest: httpTest{name: "teacher can see", path: "/v1/students/leaderboard", token: getToken(t, app.Conf, teacher)},
			want:     []string{cyd.ID, amy.ID, bob.ID},
		},
		{httpTest: httpTest{name: "limit=2", path: "/v1/students/leaderboard?limit=2", token: studentToken}, want: []string{cyd.ID, amy.ID}},
		{httpTest: httpTest{name: "limit (invalid)", path: "/v1/students/leaderboard?limit=lol", token: studentToken}, want: []string{cyd.ID, amy.ID, bob.ID}},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)

			if tt.want != nil {
				assert.Equal(t, tt.want, ids(t, rec))
			}
		})
	}
}

func Test_studentApi_retrieve(t *testing.T) {
	app, srv := setup(t)
	amy := app.CreateStudent(t, "Amy Pond", "amy")
	bob := app.CreateStudent(t, "Bob Marley", "bob")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	app.GrantXP(t, amy.ID, 15, teacher.ID)
	teacherToken := getToken(t, app.Conf, teacher)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/students/" + amy.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "other student", path: "/v1/students/" + amy.ID, token: getToken(t, app.Conf, bob), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "self", path: "/v1/students/" + amy.ID, token: getToken(t, app.Conf, amy), wantCode: http.StatusOK},
		{name: "teacher", path: "/v1/students/" + amy.ID, token: teacherToken, wantCode: http.StatusOK},
		{
			name: "teacher has no account", path: "/v1/students/" + teacher.ID, token: teacherToken, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "student account not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var acct xp.Account
				decode(t, rec, &acct)
				assert.Equal(t, amy.ID, acct.StudentID)
				assert.Equal(t, 15, acct.TotalXP)
				assert.Equal(t, 15, acct.AvailableXP)
				if assert.NotNil(t, acct.Student) {
					assert.Equal(t, amy.Username, acct.Student.Username)
				}
			}
		})
	}
}

func Test_studentApi_addXP(t *testing.T) {
	app, srv := setup(t)
	amy := app.CreateStudent(t, "Amy Pond", "amy")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	teacherToken := getToken(t, app.Conf, teacher)
	path := "/v1/students/" + amy.ID + "/add-xp"

	type grantReq struct {
		XPPoints int    `json:"xp_points"`
		Reason   string `json:"reason"`
	}

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher required", path: path, token: getToken(t, app.Conf, amy), wantCode: http.StatusForbidden,
			body: marchallObj(t, grantReq{XPPoints: 1000}), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "zero xp", path: path, token: teacherToken, wantCode: http.StatusBadRequest, body: marchallObj(t, grantReq{}), extra: []string{"xp_points"}},
		{
			name: "negative xp", path: path, token: teacherToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, grantReq{XPPoints: -10}), extra: []string{"xp_points"},
		},
		{
			name: "too much xp", path: path, token: teacherToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, grantReq{XPPoints: math.MaxInt64}), extra: []string{"xp_points"},
		},
		{
			name: "unknown student", path: "/v1/students/" + teacher.ID + "/add-xp", token: teacherToken, wantCode: http.StatusNotFound,
			body: marchallObj(t, grantReq{XPPoints: 10}), wantData: marchallObj(t, httpErr{Error: "student account not found"}),
		},
		{
			name: "granted", path: path, token: teacherToken, wantCode: http.StatusOK,
			body: marchallObj(t, grantReq{XPPoints: 50, Reason: "Science fair"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			app.Mail.Reset()
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)

			if fields, ok := tt.extra.([]string); ok {
				assertFieldErrors(t, rec, fields...)
				return
			}
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var acct xp.Account
				decode(t, rec, &acct)
				assert.Equal(t, 50, acct.TotalXP)
				assert.Equal(t, 50, acct.AvailableXP)

				grants, err := app.Ledger.History(context.Background(), xp.GrantFilter{StudentID: amy.ID})
				if err != nil {
					t.Fatalf("History() failed: %v", err)
				}
				if assert.Len(t, grants, 1) {
					assert.Equal(t, teacher.ID, grants[0].ActorID.String)
					assert.Equal(t, "Science fair", grants[0].Reason)
				}
				assert.Len(t, app.Mail.SentMessages(), 1)
			} else {
				assert.Empty(t, app.Mail.SentMessages())
			}
		})
	}
}

func Test_studentApi_history(t *testing.T) {
	app, srv := setup(t)
	amy := app.CreateStudent(t, "Amy Pond", "amy")
	bob := app.CreateStudent(t, "Bob Marley", "bob")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	g1 := app.GrantXP(t, amy.ID, 5, teacher.ID)
	time.Sleep(5 * time.Millisecond)
	app.GrantXP(t, amy.ID, 7, "")
	app.GrantXP(t, bob.ID, 9, teacher.ID)
	path := "/v1/students/" + amy.ID + "/xp-history"
	teacherToken := getToken(t, app.Conf, teacher)

	tests := []struct {
		httpTest
		wantAmounts []int
	}{
		{httpTest: httpTest{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}},
		{httpTest: httpTest{
			name: "other student", path: path, token: getToken(t, app.Conf, bob), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}},
		{httpTest: httpTest{name: "self, newest first", path: path, token: getToken(t, app.Conf, amy)}, wantAmounts: []int{7, 5}},
		{httpTest: httpTest{name: "teacher", path: path, token: teacherToken}, wantAmounts: []int{7, 5}},
		{httpTest: httpTest{name: "by actor", path: path + "?actor_id=" + teacher.ID, token: teacherToken}, wantAmounts: []int{5}},
		{
			httpTest:    httpTest{name: "from the future", path: path + "?from=" + g1.UpdatedAt.Add(time.Hour).UTC().Format(time.RFC3339), token: teacherToken},
			wantAmounts: []int{},
		},
		{httpTest: httpTest{name: "invalid time", path: path + "?to=lol", token: teacherToken}, wantAmounts: []int{}},
		{
			httpTest: httpTest{
				name: "teacher has no account", path: "/v1/students/" + teacher.ID + "/xp-history", token: teacherToken,
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student account not found"}),
			},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)

			if tt.wantAmounts != nil {
				var grants []xp.Grant
				decode(t, rec, &grants)
				amounts := make([]int, 0, len(grants))
				for _, g := range grants {
					amounts = append(amounts, g.Amount)
				}
				assert.Equal(t, tt.wantAmounts, amounts)
			}
		})
	}
}
