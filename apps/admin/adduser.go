package main

import (
	"context"
	"fmt"

	"github.com/trezcool/darasa/core/user"
)

func (cli *commandLine) addUser(nu user.NewUser) error {
	ctx := context.Background()
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("created user %s (%s)\n", usr.Username, usr.ID)
	return nil
}
