package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/xpcamp/apps/api/echo"
	"github.com/trezcool/xpcamp/core/user"
	apptest "github.com/trezcool/xpcamp/testutil"
)

func Test_home(t *testing.T) {
	_, srv := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to XPCamp API!", rec.Body.String())
}

func Test_userApi_login(t *testing.T) {
	app, srv := setup(t)
	student := app.CreateStudent(t, "Ada Lovelace", "ada")
	naughty := app.CreateStudent(t, "N Dog", "ndog")
	naughty.IsActive = false
	if _, err := app.UserRepo.UpdateUser(context.Background(), naughty); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}

	authFailed := marchallObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, extra: []string{"username", "password"}},
		{
			name: "unknown user", wantCode: http.StatusBadRequest, wantData: authFailed,
			body: marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: apptest.DefaultPassword}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest, wantData: authFailed,
			body: marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "lol"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
			body: marchallObj(t, echoapi.LoginRequest{Username: naughty.Username, Password: apptest.DefaultPassword}),
		},
		{
			name: "by username", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: " ADA ", Password: apptest.DefaultPassword}),
		},
		{
			name: "by email", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: student.Email, Password: apptest.DefaultPassword}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			srv.ServeHTTP(rec, req)

			if fields, ok := tt.extra.([]string); ok {
				assertFieldErrors(t, rec, fields...)
				return
			}
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				decode(t, rec, &resp)
				if resp.Token == "" {
					t.Error("failed! empty token")
				}
				usr, err := app.Users.GetByID(context.Background(), student.ID)
				if err != nil {
					t.Fatalf("GetByID() failed: %v", err)
				}
				if usr.LastLogin == nil {
					t.Error("failed! last_login not set")
				}
			}
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	app, srv := setup(t)
	student := app.CreateStudent(t, "Ada Lovelace", "ada")
	naughty := app.CreateStudent(t, "N Dog", "ndog")
	naughtyToken := getToken(t, app.Conf, naughty) // issued before deactivation
	naughty.IsActive = false
	if _, err := app.UserRepo.UpdateUser(context.Background(), naughty); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    app.Conf.AppName,
			Subject:   student.ID,
			ExpiresAt: now.Add(app.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * app.Conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     student.Username,
		Role:         student.Role.String(),
	}
	unrefreshableToken, err := echoapi.GenerateToken(app.Conf, unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", token: naughtyToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, app.Conf, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				decode(t, rec, &resp)
				if resp.Token == "" {
					t.Error("failed! empty token")
				}
			}
		})
	}
}

func Test_userApi_me(t *testing.T) {
	app, srv := setup(t)
	student := app.CreateStudent(t, "Ada Lovelace", "ada")
	ghost := user.User{ID: "00000000-0000-0000-0000-000000000000", Role: user.RoleStudent}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Invalid token", token: "lol", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Deleted user", token: getToken(t, app.Conf, ghost), wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{name: "Me", token: getToken(t, app.Conf, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users/me"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var usr user.User
				decode(t, rec, &usr)
				assert.Equal(t, student.ID, usr.ID)
				assert.Equal(t, student.Username, usr.Username)
				assert.Equal(t, user.RoleStudent, usr.Role)
			}
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app, srv := setup(t)
	student := app.CreateStudent(t, "Ada Lovelace", "ada")
	teacher := app.CreateTeacher(t, "Alan Turing", "alan")
	teacherToken := getToken(t, app.Conf, teacher)

	newUser := func(uname, email string, role user.Role) user.NewUser {
		return user.NewUser{
			Name:            "Grace Hopper",
			Username:        uname,
			Email:           email,
			Role:            role,
			Password:        apptest.DefaultPassword,
			PasswordConfirm: apptest.DefaultPassword,
		}
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher required", token: getToken(t, app.Conf, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: teacherToken, wantCode: http.StatusBadRequest,
			extra: []string{"name", "username", "role", "password", "password_confirm"},
		},
		{
			name: "username taken", token: teacherToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, newUser("ADA", "", user.RoleStudent)), extra: []string{"username"},
		},
		{
			name: "invalid role", token: teacherToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, newUser("grace", "", user.Role("janitor"))), extra: []string{"role"},
		},
		{
			name: "student created", token: teacherToken, wantCode: http.StatusCreated,
			body: marchallObj(t, newUser("Grace", "grace@xpcamp.test", user.RoleStudent)),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)

			if fields, ok := tt.extra.([]string); ok {
				assertFieldErrors(t, rec, fields...)
				return
			}
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				decode(t, rec, &usr)
				assert.Equal(t, "grace", usr.Username)
				assert.NotContains(t, rec.Body.String(), "password")

				// students get an XP account on creation
				acct, err := app.Ledger.GetAccount(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetAccount() failed: %v", err)
				}
				assert.Zero(t, acct.TotalXP)
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app, srv := setup(t)
	ada := app.CreateStudent(t, "Ada Lovelace", "ada")
	bob := app.CreateStudent(t, "Bob Marley", "bob")
	alan := app.CreateTeacher(t, "Alan Turing", "alan")
	teacherToken := getToken(t, app.Conf, alan)

	path := func(search, ordering string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	tests := []struct {
		httpTest
		want []string
	}{
		{httpTest: httpTest{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}},
		{httpTest: httpTest{
			name: "Teacher required", path: "/v1/users", token: getToken(t, app.Conf, ada), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}},
		{httpTest: httpTest{name: "order by name", path: path("", "name"), token: teacherToken}, want: []string{ada.ID, alan.ID, bob.ID}},
		{httpTest: httpTest{name: "order by -username", path: path("", "-username"), token: teacherToken}, want: []string{bob.ID, alan.ID, ada.ID}},
		{httpTest: httpTest{name: "search=AL", path: path("AL", "name"), token: teacherToken}, want: []string{alan.ID}},
		{httpTest: httpTest{name: "search (unknown)", path: path("lol", ""), token: teacherToken}, want: []string{}},
		{
			httpTest: httpTest{name: "role=student", path: path("", "username", user.RoleStudent.String()), token: teacherToken},
			want:     []string{ada.ID, bob.ID},
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

			if tt.want != nil {
				assert.Equal(t, tt.want, ids(t, rec))
			}
		})
	}
}

func Test_userApi_destroy(t *testing.T) {
	app, srv := setup(t)
	ada := app.CreateStudent(t, "Ada Lovelace", "ada")
	bob := app.CreateStudent(t, "Bob Marley", "bob")
	alan := app.CreateTeacher(t, "Alan Turing", "alan")
	teacherToken := getToken(t, app.Conf, alan)

	// bob made a purchase, he is protected
	app.GrantXP(t, bob.ID, 10, alan.ID)
	it := app.CreateItem(t, "Sticker", 5, 3, true)
	if _, err := app.Store.Purchase(context.Background(), bob.ID, it.ID); err != nil {
		t.Fatalf("Purchase() failed: %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + ada.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher required", path: "/v1/users/" + ada.ID, token: getToken(t, app.Conf, bob), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown user", path: "/v1/users/lol", token: teacherToken, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "cannot delete self", path: "/v1/users/" + alan.ID, token: teacherToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "purchaser protected", path: "/v1/users/" + bob.ID, token: teacherToken, wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: user.ErrUserProtected.Error()}),
		},
		{name: "deleted", path: "/v1/users/" + ada.ID, token: teacherToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	if _, err := app.Users.GetByID(context.Background(), ada.ID); err != user.ErrNotFound {
		t.Errorf("failed! GetByID() error = %v; want %v", err, user.ErrNotFound)
	}
}

func Test_userApi_retrieve(t *testing.T) {
	app, srv := setup(t)
	ada := app.CreateStudent(t, "Ada Lovelace", "ada")
	alan := app.CreateTeacher(t, "Alan Turing", "alan")

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + ada.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher required", path: "/v1/users/" + ada.ID, token: getToken(t, app.Conf, ada), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown user", path: "/v1/users/lol", token: getToken(t, app.Conf, alan), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{name: "found", path: "/v1/users/" + ada.ID, token: getToken(t, app.Conf, alan), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var usr user.User
				decode(t, rec, &usr)
				assert.Equal(t, ada.ID, usr.ID)
			}
		})
	}
}

func Test_userApi_update(t *testing.T) {
	app, srv := setup(t)
	ada := app.CreateStudent(t, "Ada Lovelace", "ada")
	app.CreateStudent(t, "Grace Hopper", "grace")
	alan := app.CreateTeacher(t, "Alan Turing", "alan")
	teacherToken := getToken(t, app.Conf, alan)
	inactive, active := false, true

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + ada.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher required", path: "/v1/users/" + ada.ID, token: getToken(t, app.Conf, ada), wantCode: http.StatusForbidden,
			body: marchallObj(t, user.UpdateUser{Name: "Ada"}), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown user", path: "/v1/users/lol", token: teacherToken, wantCode: http.StatusNotFound,
			body: marchallObj(t, user.UpdateUser{Name: "Ada"}), wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "email taken", path: "/v1/users/" + ada.ID, token: teacherToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.UpdateUser{Email: "GRACE@xpcamp.test"}), extra: []string{"email"},
		},
		{
			name: "cannot deactivate self", path: "/v1/users/" + alan.ID, token: teacherToken, wantCode: http.StatusForbidden,
			body: marchallObj(t, user.UpdateUser{IsActive: &inactive}), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "self stays active", path: "/v1/users/" + alan.ID, token: teacherToken, wantCode: http.StatusOK,
			body: marchallObj(t, user.UpdateUser{IsActive: &active}),
		},
		{
			name: "deactivated", path: "/v1/users/" + ada.ID, token: teacherToken, wantCode: http.StatusOK,
			body: marchallObj(t, user.UpdateUser{Name: "Ada King", IsActive: &inactive}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)

			if fields, ok := tt.extra.([]string); ok {
				assertFieldErrors(t, rec, fields...)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	usr, err := app.Users.GetByID(context.Background(), ada.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	assert.Equal(t, "Ada King", usr.Name)
	assert.Equal(t, "ada@xpcamp.test", usr.Email)
	assert.False(t, usr.IsActive)
	assert.Equal(t, user.RoleStudent, usr.Role)
}

func Test_userApi_updateMe(t *testing.T) {
	app, srv := setup(t)
	ada := app.CreateStudent(t, "Ada Lovelace", "ada")
	ghost := user.User{ID: "00000000-0000-0000-0000-000000000000", Role: user.RoleStudent}
	token := getToken(t, app.Conf, ada)
	inactive := false

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Deleted user", token: getToken(t, app.Conf, ghost), wantCode: http.StatusUnauthorized,
			body: marchallObj(t, user.UpdateUser{Name: "Ghost"}), wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name: "cannot change active status", token: token, wantCode: http.StatusForbidden,
			body: marchallObj(t, user.UpdateUser{IsActive: &inactive}), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "invalid email", token: token, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.UpdateUser{Email: "ada@"}), extra: []string{"email"},
		},
		{
			name: "updated", token: token, wantCode: http.StatusOK,
			body: marchallObj(t, user.UpdateUser{Name: " Ada King ", Email: "ada@analytical.test"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.path = "/v1/users/me"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)

			if fields, ok := tt.extra.([]string); ok {
				assertFieldErrors(t, rec, fields...)
				return
			}
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var usr user.User
				decode(t, rec, &usr)
				assert.Equal(t, "Ada King", usr.Name)
				assert.Equal(t, "ada@analytical.test", usr.Email)
				assert.True(t, usr.IsActive)
			}
		})
	}
}

func Test_userApi_changePassword(t *testing.T) {
	app, srv := setup(t)
	ada := app.CreateStudent(t, "Ada Lovelace", "ada")
	token := getToken(t, app.Conf, ada)
	newPwd := "N3w&Improved"

	change := func(old, pwd, confirm string) []byte {
		return marchallObj(t, user.ChangePassword{OldPassword: old, NewPassword: pwd, NewPasswordConfirm: confirm})
	}
	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "required fields", token: token, wantCode: http.StatusBadRequest,
			extra: []string{"old_password", "new_password", "new_password_confirm"},
		},
		{
			name: "wrong password", token: token, wantCode: http.StatusBadRequest,
			body: change("lol", newPwd, newPwd), wantData: marchallObj(t, map[string]string{"old_password": "wrong password"}),
		},
		{
			name: "weak password", token: token, wantCode: http.StatusBadRequest,
			body:     change(apptest.DefaultPassword, "12345678", "12345678"),
			wantData: marchallObj(t, map[string]string{"new_password": user.PasswordPolicyText("pwdnotallnum")}),
		},
		{
			name: "changed", token: token, wantCode: http.StatusOK,
			body:     change(apptest.DefaultPassword, newPwd, newPwd),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password updated successfully."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/change-password"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)

			if fields, ok := tt.extra.([]string); ok {
				assertFieldErrors(t, rec, fields...)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the new password logs in, the old one does not
	req, rec := newRequest(http.MethodPost, "/v1/users/login",
		marchallObj(t, echoapi.LoginRequest{Username: ada.Username, Password: newPwd}))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodPost, "/v1/users/login",
		marchallObj(t, echoapi.LoginRequest{Username: ada.Username, Password: apptest.DefaultPassword}))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
