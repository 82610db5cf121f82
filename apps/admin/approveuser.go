package main

import (
	"context"
	"time"

	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/user"
)

// approveUser activates a pending account without sending a notification.
func (cli *commandLine) approveUser(email string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()

	active := true
	if _, err := cli.usrRepo.UpdateUser(ctx, usr, &active); err != nil {
		return err
	}
	return nil
}
