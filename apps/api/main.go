package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/nazorat/apps/api/echo"
	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
	appfs "github.com/trezcool/nazorat/fs"
	logsvc "github.com/trezcool/nazorat/services/logger"
	"github.com/trezcool/nazorat/storage/database"
	"github.com/trezcool/nazorat/storage/database/inmem"
	sqlxrepos "github.com/trezcool/nazorat/storage/database/sqlx"
	"github.com/trezcool/nazorat/storage/fixtures"
)

const memoryEngine = "memory"

type stores struct {
	users user.Repository
	quiz  quiz.Repository
	close func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up stores
	st, err := setUpStores(conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up stores: %v", err), err)
	}
	defer func() {
		if err = st.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)

	user.LoadCommonPasswords(appfs.FS, logger)

	usrSvc := user.NewService(st.users)
	quizSvc := quiz.NewService(st.quiz, conf, logger, validate)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("engine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			QuizSvc:    quizSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStores returns the PostgreSQL repositories, or in-memory ones loaded with fixtures
// when the database engine is "memory".
func setUpStores(conf *core.Config, logger core.Logger) (stores, error) {
	if conf.Database.Engine == memoryEngine {
		return setUpMemoryStores(conf, logger)
	}

	db, err := setUpDB(conf)
	if err != nil {
		return stores{}, err
	}
	dbx := sqlx.NewDb(db, conf.Database.Engine)
	return stores{
		users: sqlxrepos.NewUserRepository(dbx),
		quiz:  sqlxrepos.NewQuizRepository(dbx),
		close: dbx.Close,
	}, nil
}

func setUpMemoryStores(conf *core.Config, logger core.Logger) (stores, error) {
	db, err := inmemdb.Open()
	if err != nil {
		return stores{}, err
	}
	usrRepo := inmemdb.NewUserRepository(db)

	var data fixtures.Data
	if path := conf.Database.Fixtures; path != "" {
		file, err := os.Open(path)
		if err != nil {
			return stores{}, errors.Wrap(err, "opening fixtures")
		}
		defer file.Close()
		data, err = fixtures.Parse(file)
		if err != nil {
			return stores{}, err
		}
	} else if data, err = fixtures.ParseFile(appfs.FS, fixtures.DemoPath); err != nil {
		return stores{}, err
	}

	sum, err := fixtures.Load(context.Background(), data, usrRepo, inmemdb.NewQuizSeeder(db))
	if err != nil {
		return stores{}, errors.Wrap(err, "loading fixtures")
	}
	logger.Info(fmt.Sprintf("in-memory store loaded with %s", sum))

	return stores{
		users: usrRepo,
		quiz:  inmemdb.NewQuizRepository(db),
		close: func() error { return nil },
	}, nil
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
