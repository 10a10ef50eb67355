package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrRepo  user.Repository
	usrSvc   *user.Service
	quizSvc  *quiz.Service
	seeder   quiz.Seeder
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) on the database")
	fmt.Fprintln(cli.out, "  adduser -name NAME [-username USERNAME] [-email EMAIL] [-role student|teacher|admin] - create an active user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  regrade -attempt ID - grade a submitted attempt again")
	fmt.Fprintln(cli.out, "  loaddata -file FIXTURES.yaml - load users, courses & tests")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. Required without email.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. Required without username.")
	addUserRole := addUserCmd.String("role", "student", "The user's role: student, teacher or admin. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	regradeCmd := flag.NewFlagSet("regrade", flag.ContinueOnError)
	regradeAttempt := regradeCmd.Int("attempt", 0, "The ID of the submitted attempt.")

	loadDataCmd := flag.NewFlagSet("loaddata", flag.ContinueOnError)
	loadDataFile := loadDataCmd.String("file", "", "The YAML fixtures file.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "regrade":
		if err := regradeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *regradeAttempt <= 0 {
			regradeCmd.Usage()
			return errHelp
		}
		return cli.regrade(*regradeAttempt)

	case "loaddata":
		if err := loadDataCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loadDataFile == "" {
			loadDataCmd.Usage()
			return errHelp
		}
		return cli.loadData(*loadDataFile)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
