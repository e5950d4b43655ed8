package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/xpcamp/apps/api/echo"
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

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	UserSvc    echoapi.UserService
	Ledger     echoapi.XPLedger
	StoreSvc   echoapi.StoreService
	Validate   *validator.Validate
	Translator ut.Translator
	Gatherer   prometheus.Gatherer
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, conf); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newRegistry returns the registry served on /metrics, with the Go runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		Ledger:     p.Ledger,
		StoreSvc:   p.StoreSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
		Gatherer:   p.Gatherer,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newRegistry, dig.As(new(prometheus.Registerer), new(prometheus.Gatherer))))
	must(c.Provide(metricsvc.New, dig.As(new(core.Metrics))))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewXPRepository, dig.As(new(xp.Repository))))
	must(c.Provide(sqlxrepos.NewStoreRepository, dig.As(new(store.Repository))))

	// services
	must(c.Provide(xp.NewLedger, dig.As(new(user.AccountProvisioner), new(store.Ledger), new(echoapi.XPLedger))))
	must(c.Provide(user.NewService, dig.As(new(echoapi.UserService))))
	must(c.Provide(store.NewService, dig.As(new(echoapi.StoreService))))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
