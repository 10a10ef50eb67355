// Package fixtures loads users, courses and tests described in YAML into the repositories.
package fixtures

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gopkg.in/yaml.v2"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
)

// DemoPath is the path of the demo fixtures in appfs.FS.
const DemoPath = "fixtures/demo.yaml"

type (
	// Data is the content of a fixtures file, eg.
	//
	//	users:
	//	  - {name: Amani, username: amani, password: Xk7#mVq2pL, roles: [student]}
	//	  - {name: Teacher, username: teacher, password: Xk7#mVq2pL, roles: [teacher]}
	//	courses:
	//	  - {name: Biology, students: [amani]}
	//	tests:
	//	  - title: Cells
	//	    teacher: teacher
	//	    courses: [Biology]
	//	    questions:
	//	      - text: Where does photosynthesis happen?
	//	        type: OC
	//	        points: "2"
	//	        options:
	//	          - {text: Chloroplast, correct: true}
	//	          - {text: Nucleus}
	Data struct {
		Users   []User   `yaml:"users"`
		Courses []Course `yaml:"courses"`
		Tests   []Test   `yaml:"tests"`
	}

	User struct {
		Name     string   `yaml:"name"`
		Username string   `yaml:"username"`
		Email    string   `yaml:"email"`
		Password string   `yaml:"password"`
		Roles    []string `yaml:"roles"` // short names: student, teacher, admin
		Inactive bool     `yaml:"inactive"`
	}

	Course struct {
		Name     string   `yaml:"name"`
		Students []string `yaml:"students"` // usernames or emails
	}

	Test struct {
		Title     string     `yaml:"title"`
		Teacher   string     `yaml:"teacher"` // username or email
		Courses   []string   `yaml:"courses"` // names
		Questions []Question `yaml:"questions"`
	}

	Question struct {
		Text          string   `yaml:"text"`
		Type          string   `yaml:"type"`
		Points        string   `yaml:"points"`
		PartialCredit bool     `yaml:"partial_credit"`
		CaseSensitive bool     `yaml:"case_sensitive"`
		Tolerance     string   `yaml:"tolerance"`
		AnswerKind    string   `yaml:"answer_kind"`
		Options       []Option `yaml:"options"`
	}

	Option struct {
		Text    string `yaml:"text"`
		Correct bool   `yaml:"correct"`
	}

	// Summary counts the loaded objects.
	Summary struct {
		Users, Courses, Tests, Questions int
	}
)

func (s Summary) String() string {
	return fmt.Sprintf("%d users, %d courses, %d tests, %d questions", s.Users, s.Courses, s.Tests, s.Questions)
}

// Parse decodes a fixtures file.
func Parse(r io.Reader) (Data, error) {
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return Data{}, errors.Wrap(err, "reading fixtures")
	}
	var data Data
	if err = yaml.UnmarshalStrict(raw, &data); err != nil {
		return Data{}, errors.Wrap(err, "decoding fixtures")
	}
	return data, nil
}

// ParseFile decodes the fixtures file fsys holds at name.
func ParseFile(fsys fs.FS, name string) (Data, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return Data{}, errors.Wrapf(err, "opening %s", name)
	}
	defer file.Close()
	return Parse(file)
}

type loader struct {
	users   user.Repository
	seeder  quiz.Seeder
	now     time.Time
	usrIDs  map[string]int
	courses map[string]int
}

// Load creates everything the fixtures describe. Users are referenced by username or email and courses by name;
// a reference to an unknown object is an error.
// Loading is not atomic: objects created before an error are kept.
func Load(ctx context.Context, data Data, users user.Repository, seeder quiz.Seeder) (Summary, error) {
	l := loader{
		users:   users,
		seeder:  seeder,
		now:     time.Now().UTC(),
		usrIDs:  make(map[string]int),
		courses: make(map[string]int),
	}
	var sum Summary

	for _, u := range data.Users {
		if err := l.createUser(ctx, u); err != nil {
			return sum, errors.Wrapf(err, "creating user %q", u.Name)
		}
		sum.Users++
	}
	for _, c := range data.Courses {
		if err := l.createCourse(ctx, c); err != nil {
			return sum, errors.Wrapf(err, "creating course %q", c.Name)
		}
		sum.Courses++
	}
	for _, t := range data.Tests {
		n, err := l.createTest(ctx, t)
		if err != nil {
			return sum, errors.Wrapf(err, "creating test %q", t.Title)
		}
		sum.Tests++
		sum.Questions += n
	}
	return sum, nil
}

func (l *loader) createUser(ctx context.Context, u User) error {
	usr := user.User{
		Name:      core.CleanString(u.Name),
		Username:  core.CleanString(u.Username, true /* lower */),
		Email:     core.CleanString(u.Email, true /* lower */),
		IsActive:  !u.Inactive,
		CreatedAt: l.now,
		UpdatedAt: l.now,
	}
	for _, name := range u.Roles {
		role, ok := user.RoleFromName(name)
		if !ok {
			return errors.Errorf("unknown role %q", name)
		}
		usr.Roles = append(usr.Roles, role)
	}
	if u.Password != "" {
		if err := usr.SetPassword(u.Password); err != nil {
			return errors.Wrap(err, "setting password")
		}
	}

	usr, err := l.users.CreateUser(ctx, usr)
	if err != nil {
		return err
	}
	if usr.Username != "" {
		l.usrIDs[usr.Username] = usr.ID
	}
	if usr.Email != "" {
		l.usrIDs[usr.Email] = usr.ID
	}
	return nil
}

func (l *loader) userID(ref string) (int, error) {
	id, ok := l.usrIDs[core.CleanString(ref, true /* lower */)]
	if !ok {
		return 0, errors.Errorf("unknown user %q", ref)
	}
	return id, nil
}

func (l *loader) createCourse(ctx context.Context, c Course) error {
	course, err := l.seeder.CreateCourse(ctx, quiz.Course{Name: core.CleanString(c.Name), CreatedAt: l.now})
	if err != nil {
		return err
	}
	l.courses[course.Name] = course.ID

	for _, ref := range c.Students {
		id, err := l.userID(ref)
		if err != nil {
			return err
		}
		if err = l.seeder.EnrollStudent(ctx, course.ID, id); err != nil {
			return errors.Wrapf(err, "enrolling %q", ref)
		}
	}
	return nil
}

func (l *loader) createTest(ctx context.Context, t Test) (int, error) {
	teacherID, err := l.userID(t.Teacher)
	if err != nil {
		return 0, err
	}
	courseIDs := make([]int, 0, len(t.Courses))
	for _, name := range t.Courses {
		id, ok := l.courses[core.CleanString(name)]
		if !ok {
			return 0, errors.Errorf("unknown course %q", name)
		}
		courseIDs = append(courseIDs, id)
	}

	test, err := l.seeder.CreateTest(ctx, quiz.Test{Title: core.CleanString(t.Title), TeacherID: teacherID, CreatedAt: l.now}, courseIDs...)
	if err != nil {
		return 0, err
	}
	for i, fq := range t.Questions {
		q, err := newQuestion(test.ID, i+1, fq)
		if err != nil {
			return i, errors.Wrapf(err, "question %d", i+1)
		}
		if _, err = l.seeder.CreateQuestion(ctx, q); err != nil {
			return i, errors.Wrapf(err, "creating question %d", i+1)
		}
	}
	return len(t.Questions), nil
}

func newQuestion(testID, position int, fq Question) (quiz.Question, error) {
	switch fq.Type {
	case quiz.TypeOneChoice, quiz.TypeMultipleChoice, quiz.TypeOrdering, quiz.TypeMatching, quiz.TypeWritten:
	default:
		return quiz.Question{}, errors.Errorf("unknown question type %q", fq.Type)
	}
	points, err := parseDecimal(fq.Points, "1")
	if err != nil {
		return quiz.Question{}, errors.Wrap(err, "parsing points")
	}
	tolerance, err := parseDecimal(fq.Tolerance, "0")
	if err != nil {
		return quiz.Question{}, errors.Wrap(err, "parsing tolerance")
	}

	q := quiz.Question{
		TestID:        testID,
		Text:          fq.Text,
		Type:          fq.Type,
		Points:        points,
		PartialCredit: fq.PartialCredit,
		CaseSensitive: fq.CaseSensitive,
		Tolerance:     tolerance,
		Position:      position,
	}
	if fq.AnswerKind != "" {
		q.AnswerKind = null.StringFrom(fq.AnswerKind)
	}
	for i, fo := range fq.Options {
		q.Options = append(q.Options, quiz.Option{Text: fo.Text, IsCorrect: fo.Correct, Position: i + 1})
	}
	return q, nil
}

func parseDecimal(s, def string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	return decimal.NewFromString(s)
}
