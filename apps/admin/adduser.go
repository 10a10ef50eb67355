package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/nazorat/core/user"
)

// addUser validates and creates an active user.User with the given role.
func (cli *commandLine) addUser(name, uname, email, roleName, pwd string) error {
	ctx := context.Background()
	role, ok := user.RoleFromName(roleName)
	if !ok {
		return errors.Errorf("unknown role %q", roleName)
	}

	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{role},
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %d created\n", usr.ID)
	return nil
}
