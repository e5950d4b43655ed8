// Package testutil wires the app on an in-memory SQLite database for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/store"
	"github.com/trezcool/xpcamp/core/user"
	"github.com/trezcool/xpcamp/core/xp"
	emailsvc "github.com/trezcool/xpcamp/services/email"
	logsvc "github.com/trezcool/xpcamp/services/logger"
	metricsvc "github.com/trezcool/xpcamp/services/metrics"
	"github.com/trezcool/xpcamp/storage/database"
	sqlxrepos "github.com/trezcool/xpcamp/storage/database/sqlx"
)

// DefaultPassword satisfies the password policy.
const DefaultPassword = "Sup3r$ecret!"

type App struct {
	Conf       *core.Config
	DB         *sqlx.DB
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Registry   *prometheus.Registry
	Metrics    *metricsvc.PrometheusMetrics
	Mail       *emailsvc.ConsoleServiceMock

	UserRepo  user.Repository
	XPRepo    xp.Repository
	StoreRepo store.Repository

	Users  *user.Service
	Ledger *xp.Ledger
	Store  *store.Service
}

func NewLogger() *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// PrepareDB opens a fresh, migrated in-memory database closed at the end of the test.
func PrepareDB(t *testing.T, conf *core.Config) *sqlx.DB {
	t.Helper()
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewApp wires every service on a fresh database.
func NewApp(t *testing.T) *App {
	t.Helper()
	conf := core.NewTestConfig()
	logger := NewLogger()
	validate, translator := NewValidator()
	reg := prometheus.NewRegistry()

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	app := &App{
		Conf:       conf,
		DB:         PrepareDB(t, conf),
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Registry:   reg,
		Metrics:    metricsvc.New(reg),
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),
	}
	app.UserRepo = sqlxrepos.NewUserRepository(app.DB)
	app.XPRepo = sqlxrepos.NewXPRepository(app.DB)
	app.StoreRepo = sqlxrepos.NewStoreRepository(app.DB)

	app.Ledger = xp.NewLedger(app.DB, app.XPRepo, validate, translator, app.Mail, app.Metrics, logger)
	app.Users = user.NewService(app.DB, app.UserRepo, app.Ledger, validate, translator)
	app.Store = store.NewService(app.DB, app.StoreRepo, app.Ledger, validate, translator, app.Mail, app.Metrics, logger)
	return app
}

// CreateUser creates an active user with DefaultPassword through the user service.
func (app *App) CreateUser(t *testing.T, name, uname, email string, role user.Role) user.User {
	t.Helper()
	usr, err := app.Users.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Role:            role,
		Password:        DefaultPassword,
		PasswordConfirm: DefaultPassword,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (app *App) CreateStudent(t *testing.T, name, uname string) user.User {
	t.Helper()
	return app.CreateUser(t, name, uname, uname+"@xpcamp.test", user.RoleStudent)
}

func (app *App) CreateTeacher(t *testing.T, name, uname string) user.User {
	t.Helper()
	return app.CreateUser(t, name, uname, uname+"@xpcamp.test", user.RoleTeacher)
}

// CreateItem creates an item with the given cost, stock and status.
func (app *App) CreateItem(t *testing.T, name string, xpCost, stock int, active bool) store.Item {
	t.Helper()
	it, err := app.Store.CreateItem(context.Background(), store.NewItem{
		Name:          name,
		XPCost:        xpCost,
		StockQuantity: &stock,
		IsActive:      &active,
	})
	if err != nil {
		t.Fatalf("CreateItem() failed: %v", err)
	}
	return it
}

// GrantXP grants amount XP to a student on behalf of actorID.
func (app *App) GrantXP(t *testing.T, studentID string, amount int, actorID string) xp.Account {
	t.Helper()
	acct, err := app.Ledger.Grant(context.Background(), xp.GrantXP{StudentID: studentID, Amount: amount, Reason: "test"}, actorID)
	if err != nil {
		t.Fatalf("GrantXP() failed: %v", err)
	}
	return acct
}
