package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	upsvc "findiff/internal/userprofile/service"
)

const superuserPasswordEnv = "FINDIFF_SUPERUSER_PASSWORD"

func newCreateSuperuserCommand(ctx *commandContext) *cobra.Command {
	var username, password, nickname, email string

	cmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create an account that holds every permission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(superuserPasswordEnv)
			}
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				return fmt.Errorf("--password or %s is required", superuserPasswordEnv)
			}

			svc, err := ctx.users(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			user, err := svc.CreateUser(cmd.Context(), upsvc.CreateUserCommand{
				Username:  username,
				Password:  password,
				Nickname:  nickname,
				Email:     email,
				Superuser: true,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created superuser %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (defaults to $"+superuserPasswordEnv+")")
	cmd.Flags().StringVar(&nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	return cmd
}
