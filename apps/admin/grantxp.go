package main

import (
	"context"

	"github.com/trezcool/xpcamp/core/xp"
)

// grantXP credits a student on behalf of an unknown granter.
func (cli *commandLine) grantXP(uname string, amount int, reason string) error {
	ctx := context.Background()
	usr, err := cli.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	acct, err := cli.ledger.Grant(ctx, xp.GrantXP{StudentID: usr.ID, Amount: amount, Reason: reason}, "")
	if err != nil {
		return err
	}
	cli.logger.Printf("%q now has %d XP (%d available)", usr.Username, acct.TotalXP, acct.AvailableXP)
	return nil
}
