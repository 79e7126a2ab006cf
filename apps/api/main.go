package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"

	echoapi "github.com/suliportal/suliportal/apps/api/echo"
	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
	emailsvc "github.com/suliportal/suliportal/services/email"
	logsvc "github.com/suliportal/suliportal/services/logger"
	notifysvc "github.com/suliportal/suliportal/services/notifier"
	"github.com/suliportal/suliportal/storage/mongodb"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: %+v", err)
	}
}

func run() error {
	conf := core.NewConfig()

	stdLogger := log.New(os.Stdout, fmt.Sprintf("%s API : ", conf.AppName), log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	defer rollbar.Close()

	expvar.NewString("build").Set(conf.Build)
	logger.Info(fmt.Sprintf("main: started: application initializing: version %s", conf.Build))
	defer logger.Info("main: completed")

	// database
	dbCtx, dbCancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
	defer dbCancel()

	logger.Info(fmt.Sprintf("main: initializing database: %s", conf.Database.Name))
	db, err := mongodb.Open(dbCtx, conf)
	if err != nil {
		return errors.Wrap(err, "connecting to database")
	}
	defer func() {
		logger.Info("main: stopping database")
		if err := db.Close(context.Background()); err != nil {
			logger.Error("main: closing database", err)
		}
	}()
	if err = db.EnsureIndexes(dbCtx); err != nil {
		return errors.Wrap(err, "ensuring database indexes")
	}

	// validation
	validate, translator := core.NewValidators()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(conf, logger)

	core.ParseEmailTemplates(conf, logger)

	// services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var notifier core.Notifier
	if conf.OpsWebhookURL != "" {
		notifier = notifysvc.NewWebhookNotifier(conf, logger)
	} else {
		notifier = notifysvc.NewLoggerNotifier(logger)
	}

	usrRepo := mongodb.NewUserRepository(db)
	menuRepo := mongodb.NewMenuRepository(db)
	orderRepo := mongodb.NewOrderRepository(db)

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	lunchSvc := lunch.NewService(menuRepo, orderRepo, usrRepo, mailSvc, notifier, conf, logger)
	kioskSvc := lunch.NewKioskService(usrRepo, menuRepo, orderRepo, conf, logger)

	// debug server; /debug/pprof & /debug/vars
	go func() {
		logger.Info(fmt.Sprintf("main: debug server listening on %s", conf.Server.DebugHost))
		if err := http.ListenAndServe(conf.Server.DebugHost, debugMux()); err != nil {
			logger.Error("main: debug server closed", err)
		}
	}()

	// API server
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		LunchSvc:   lunchSvc,
		KioskSvc:   kioskSvc,
		Validate:   validate,
		Translator: translator,
	})

	go func() {
		logger.Info(fmt.Sprintf("main: API server listening on %s", conf.Server.Addr))
		server.Start()
	}()

	select {
	case err := <-server.Errors():
		return errors.Wrap(err, "server error")

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("main: %v: start shutdown", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				return errors.Wrap(closeErr, "could not stop server gracefully")
			}
			return errors.Wrap(err, "could not stop server gracefully")
		}
	}
	return nil
}

func debugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}
