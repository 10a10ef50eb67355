package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
	appfs "github.com/trezcool/nazorat/fs"
	logsvc "github.com/trezcool/nazorat/services/logger"
	"github.com/trezcool/nazorat/storage/database"
)

// TestDatabaseURLEnv names the env var holding the URL of the database SQL repository tests run against.
const TestDatabaseURLEnv = "TEST_DATABASE_URL"

var loadPasswords sync.Once

// NewConfig returns the TEST config, with resubmission allowed.
func NewConfig() *core.Config {
	conf := &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Nazorat",
		SecretKey: "test-secret",
	}
	conf.Server.DisableReqLogs = true
	conf.Server.JWTExpirationDelta = 15 * time.Minute
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Quiz.AllowResubmission = true
	return conf
}

// NewLogger returns a logger printing nowhere, with reporting disabled.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
}

// NewValidator returns a validator with every app validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)
	loadPasswords.Do(func() { user.LoadCommonPasswords(appfs.FS, NewLogger(NewConfig())) })
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates a course the students are enrolled in.
func CreateCourse(t *testing.T, seeder quiz.Seeder, name string, students ...user.User) quiz.Course {
	ctx := context.Background()
	course, err := seeder.CreateCourse(ctx, quiz.Course{Name: name})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	for _, std := range students {
		if err = seeder.EnrollStudent(ctx, course.ID, std.ID); err != nil {
			t.Fatalf("createCourse() failed: %v", err)
		}
	}
	return course
}

// CreateTest creates a test of the teacher assigned to the courses.
func CreateTest(t *testing.T, seeder quiz.Seeder, title string, teacher user.User, courses ...quiz.Course) quiz.Test {
	ids := make([]int, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	test, err := seeder.CreateTest(context.Background(), quiz.Test{Title: title, TeacherID: teacher.ID}, ids...)
	if err != nil {
		t.Fatalf("createTest() failed: %v", err)
	}
	return test
}

func CreateQuestion(t *testing.T, seeder quiz.Seeder, q quiz.Question) quiz.Question {
	for i := range q.Options {
		if q.Options[i].Position == 0 {
			q.Options[i].Position = i + 1
		}
	}
	q, err := seeder.CreateQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("createQuestion() failed: %v", err)
	}
	return q
}

// Opt returns an answer option.
func Opt(text string, isCorrect bool) quiz.Option {
	return quiz.Option{Text: text, IsCorrect: isCorrect}
}

// Dec parses s, which must be a valid decimal.
func Dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// PrepareDB opens and migrates the test database, then empties it.
// The test is skipped when TEST_DATABASE_URL is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	dbURL := os.Getenv(TestDatabaseURLEnv)
	if dbURL == "" {
		t.Skipf("%s not set", TestDatabaseURLEnv)
	}

	db, err := database.OpenURL(dbURL)
	if err != nil {
		t.Fatalf("prepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("prepareDB() failed: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE users, courses, tests RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("prepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres")
}
