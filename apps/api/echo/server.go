// Package echoapi exposes the XP ledger and the store over HTTP with labstack/echo.
package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/store"
	"github.com/trezcool/xpcamp/core/user"
	"github.com/trezcool/xpcamp/core/xp"
)

type (
	UserService interface {
		Create(ctx context.Context, nu user.NewUser) (user.User, error)
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
		GetByID(ctx context.Context, id string) (user.User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (user.User, error)
		SetLastLogin(ctx context.Context, usr user.User) (user.User, error)
		Update(ctx context.Context, id string, uu user.UpdateUser) (user.User, error)
		ChangePassword(ctx context.Context, usr user.User, cp user.ChangePassword) (user.User, error)
		Delete(ctx context.Context, ids ...string) error
	}

	XPLedger interface {
		Grant(ctx context.Context, in xp.GrantXP, actorID string) (xp.Account, error)
		GetAccount(ctx context.Context, studentID string) (xp.Account, error)
		QueryAccounts(ctx context.Context, filter *xp.AccountFilter, ordering []core.DBOrdering) ([]xp.Account, error)
		Leaderboard(ctx context.Context, limit int) ([]xp.Account, error)
		History(ctx context.Context, filter xp.GrantFilter) ([]xp.Grant, error)
	}

	StoreService interface {
		CreateItem(ctx context.Context, ni store.NewItem) (store.Item, error)
		UpdateItem(ctx context.Context, id string, ui store.UpdateItem) (store.Item, error)
		DeleteItem(ctx context.Context, id string) error
		GetItem(ctx context.Context, id string, role user.Role) (store.Item, error)
		QueryItems(ctx context.Context, filter *store.ItemFilter, ordering []core.DBOrdering, role user.Role) ([]store.Item, error)
		GetTransaction(ctx context.Context, id string) (store.Transaction, error)
		QueryTransactions(ctx context.Context, filter *store.TransactionFilter, ordering []core.DBOrdering) ([]store.Transaction, error)
		Purchase(ctx context.Context, studentID, itemID string) (store.Transaction, error)
	}
)

var (
	_ UserService  = (*user.Service)(nil)
	_ XPLedger     = (*xp.Ledger)(nil)
	_ StoreService = (*store.Service)(nil)
)

type ServerDeps struct {
	Conf       *core.Config
	Logger     core.Logger
	UserSvc    UserService
	Ledger     XPLedger
	StoreSvc   StoreService
	Validate   *validator.Validate
	Translator ut.Translator
	Gatherer   prometheus.Gatherer
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	auth     *authenticator
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.Ledger, "Ledger"),
		vala.IsNotNil(deps.StoreSvc, "StoreSvc"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Gatherer, "Gatherer"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)

	registerUserAPI(v1, jwt, s.auth, s.deps.UserSvc, s.deps.Validate, s.deps.Translator)
	registerStudentAPI(v1, jwt, s.deps.Ledger, s.deps.Validate, s.deps.Translator, conf.LeaderboardSize)
	registerStoreAPI(v1, jwt, s.deps.StoreSvc, s.deps.Validate, s.deps.Translator)
}

// Start listens on the configured host and blocks until the server stops.
// Startup and listening errors are sent on Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// signalShutdown asks main to shut the server down gracefully.
func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to XPCamp API!")
}
