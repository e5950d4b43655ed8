package main

import (
	"context"

	"github.com/trezcool/xpcamp/core/user"
)

// addUser creates a user.User. Students get their XP account on creation.
func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.users.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	cli.logger.Printf("%s %q created (id %s)", usr.Role.Label(), usr.Username, usr.ID)
	return nil
}
