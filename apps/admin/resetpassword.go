package main

import (
	"context"

	"github.com/trezcool/nazorat/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	data := user.NewResetUserPassword(usr, pwd)
	if err = data.Validate(cli.validate); err != nil {
		return err
	}
	_, err = cli.usrSvc.ResetPassword(ctx, data)
	return err
}
