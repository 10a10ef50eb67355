package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/user"
	"github.com/trezcool/nazorat/storage/database/inmem"
	"github.com/trezcool/nazorat/tests"
)

const pwd = "Xk7#mVq2pL"

func setup(t *testing.T) (*user.Service, user.Repository, *validator.Validate) {
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewUserRepository(db)
	validate, _ := testutil.NewValidator()
	return user.NewService(repo), repo, validate
}

func tagsOf(err error) map[string]string {
	tags := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			tags[fe.Field()] = fe.Tag()
		}
	}
	return tags
}

func TestNewUser_Validate(t *testing.T) {
	ctx := context.Background()
	svc, repo, validate := setup(t)
	testutil.CreateUser(t, repo, "Taken", "taken", "taken@test.cd", pwd, nil, true)

	newUser := func(modify func(nu *user.NewUser)) user.NewUser {
		nu := user.NewUser{
			Name:            "  Jane Doe ",
			Username:        " JaneD ",
			Email:           "Jane@Test.cd",
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           []string{user.RoleStudent},
		}
		if modify != nil {
			modify(&nu)
		}
		return nu
	}

	tests := []struct {
		name     string
		nu       user.NewUser
		wantTags map[string]string
	}{
		{name: "valid", nu: newUser(nil), wantTags: map[string]string{}},
		{name: "no name", nu: newUser(func(nu *user.NewUser) { nu.Name = " " }), wantTags: map[string]string{"name": "required"}},
		{
			name:     "no username nor email",
			nu:       newUser(func(nu *user.NewUser) { nu.Username, nu.Email = "", "" }),
			wantTags: map[string]string{"username": "username_or_email", "email": "username_or_email"},
		},
		{name: "short username", nu: newUser(func(nu *user.NewUser) { nu.Username = "abc" }), wantTags: map[string]string{"username": "min"}},
		{name: "bad email", nu: newUser(func(nu *user.NewUser) { nu.Email = "jane" }), wantTags: map[string]string{"email": "email"}},
		{name: "unknown role", nu: newUser(func(nu *user.NewUser) { nu.Roles = []string{"janitor:"} }), wantTags: map[string]string{"roles": "allroles"}},
		{
			name:     "password mismatch",
			nu:       newUser(func(nu *user.NewUser) { nu.PasswordConfirm = pwd + "!" }),
			wantTags: map[string]string{"password_confirm": "eqfield"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := tt.nu
			err := nu.Validate(ctx, validate, svc)
			assert.Equal(t, tt.wantTags, tagsOf(err))
			if len(tt.wantTags) == 0 {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("cleans fields", func(t *testing.T) {
		nu := newUser(nil)
		require.NoError(t, nu.Validate(ctx, validate, svc))
		assert.Equal(t, "Jane Doe", nu.Name)
		assert.Equal(t, "janed", nu.Username)
		assert.Equal(t, "jane@test.cd", nu.Email)
	})

	t.Run("uniqueness", func(t *testing.T) {
		for field, nu := range map[string]user.NewUser{
			"username": newUser(func(nu *user.NewUser) { nu.Username = "TAKEN" }),
			"email":    newUser(func(nu *user.NewUser) { nu.Email = "taken@test.cd" }),
		} {
			err := nu.Validate(ctx, validate, svc)
			verr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "%s: got %v", field, err)
			assert.Equal(t, field, verr.Fields[0].Field)
		}
	})
}

func TestPasswordPolicy(t *testing.T) {
	_, _, validate := setup(t)
	usr := user.User{Name: "Jane Doe", Username: "janedoe", Email: "jane@test.cd"}

	tests := []struct {
		pwd     string
		wantTag string
	}{
		{pwd: pwd},
		{pwd: "Xk7#mV", wantTag: "pwdminlen"},
		{pwd: "Xk7# mVq2pL", wantTag: "pwdnospace"},
		{pwd: "1234567890", wantTag: "pwdnotallnum"},
		{pwd: "xk7#mvq2pl", wantTag: "pwdcplx"},
		{pwd: "Xk7mVq2pLw", wantTag: "pwdcplx"},
		{pwd: "Janedoe#1", wantTag: "pwdtoosim"},
		{pwd: "Student1!", wantTag: "pwdnocommon"},
	}
	for _, tt := range tests {
		t.Run(tt.pwd, func(t *testing.T) {
			err := user.NewResetUserPassword(usr, tt.pwd).Validate(validate)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, map[string]string{"password": tt.wantTag}, tagsOf(err))
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc, _, validate := setup(t)

	defer func(now func() time.Time) { user.NowFunc = now }(user.NowFunc)
	now := time.Date(2021, 1, 10, 8, 0, 0, 0, time.UTC)
	user.NowFunc = func() time.Time { return now }

	nu := user.NewUser{Name: "John", Username: "johnny", Password: pwd, PasswordConfirm: pwd, Roles: []string{user.RoleTeacher}}
	require.NoError(t, nu.Validate(ctx, validate, svc))
	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsTeacher())
	assert.False(t, usr.IsStudent())
	assert.NoError(t, usr.CheckPassword(pwd))
	assert.Equal(t, now, usr.CreatedAt)

	got, err := svc.GetByUsernameOrEmail(ctx, " JOHNNY ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByUsernameOrEmail(ctx, "nobody")
	assert.True(t, core.IsNotFound(err))
	_, err = svc.GetByID(ctx, 404)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	user.NowFunc = func() time.Time { return now.Add(time.Hour) }
	usr, err = svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), usr.LastLogin.Time)

	newPwd := "Rt5$wQz8nB"
	rp := user.NewResetUserPassword(usr, newPwd)
	require.NoError(t, rp.Validate(validate))
	usr, err = svc.ResetPassword(ctx, rp)
	require.NoError(t, err)
	assert.Error(t, usr.CheckPassword(pwd))
	assert.NoError(t, usr.CheckPassword(newPwd))

	got, err = svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(newPwd))
	assert.True(t, got.LastLogin.Valid)
}

func TestRoles(t *testing.T) {
	role, ok := user.RoleFromName(" Teacher ")
	assert.True(t, ok)
	assert.Equal(t, user.RoleTeacher, role)

	_, ok = user.RoleFromName("janitor")
	assert.False(t, ok)

	assert.Equal(t, 30, user.MaxRolePriority([]string{user.RoleStudent, user.RoleAdminOwner}))
	assert.Equal(t, 0, user.MaxRolePriority(nil))
}
