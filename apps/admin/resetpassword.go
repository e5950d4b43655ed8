package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.users.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	cli.logger.Printf("password of %q reset", usr.Username)
	return nil
}
