package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/user"
	"github.com/trezcool/xpcamp/core/xp"
	emailsvc "github.com/trezcool/xpcamp/services/email"
	logsvc "github.com/trezcool/xpcamp/services/logger"
	metricsvc "github.com/trezcool/xpcamp/services/metrics"
	"github.com/trezcool/xpcamp/storage/database"
	sqlxrepos "github.com/trezcool/xpcamp/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, appLogger)
	user.LoadCommonPasswords(appLogger)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// set up services; mails are printed since the process exits before any async delivery
	mailSvc := emailsvc.NewConsoleService(conf, appLogger)
	metrics := metricsvc.New(prometheus.NewRegistry())
	ledger := xp.NewLedger(db, sqlxrepos.NewXPRepository(db), validate, translator, mailSvc, metrics, appLogger)
	users := user.NewService(db, sqlxrepos.NewUserRepository(db), ledger, validate, translator)

	// start CLI
	cli := commandLine{
		conf:   conf,
		db:     db,
		users:  users,
		ledger: ledger,
		logger: logger,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	appLogger.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("error: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
