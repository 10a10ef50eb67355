package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
	appfs "github.com/trezcool/nazorat/fs"
	logsvc "github.com/trezcool/nazorat/services/logger"
	"github.com/trezcool/nazorat/storage/database"
	sqlxrepos "github.com/trezcool/nazorat/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	if err = db.Ping(); err != nil {
		logger.Fatal("pinging database", err)
	}
	dbx := sqlx.NewDb(db, conf.Database.Engine)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)
	user.LoadCommonPasswords(appfs.FS, logger)

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(dbx)
	cli := commandLine{
		db:       db,
		usrRepo:  usrRepo,
		usrSvc:   user.NewService(usrRepo),
		quizSvc:  quiz.NewService(sqlxrepos.NewQuizRepository(dbx), conf, logger, validate),
		seeder:   sqlxrepos.NewQuizSeeder(dbx),
		validate: validate,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = dbx.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
