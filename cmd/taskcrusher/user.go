// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/internal/account"
)

// TokenEnv supplies the session token when --token is not given.
const TokenEnv = "TASKCRUSHER_TOKEN"

// sessionOptions holds the flag shared by every token-bearing user command.
type sessionOptions struct {
	token string
}

// resolve returns the flag value, falling back to TokenEnv.
func (o *sessionOptions) resolve() (string, error) {
	token := o.token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}
	if token == "" {
		return "", oops.Code("TOKEN_REQUIRED").
			Wrapf(account.ErrAuthorization, "a session token is required (--token or %s)", TokenEnv)
	}
	return token, nil
}

// newUserCmd creates the user subcommand and its children.
func (c *cli) newUserCmd() *cobra.Command {
	session := &sessionOptions{}

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register, authenticate, and manage accounts",
	}
	cmd.PersistentFlags().StringVar(&session.token, "token", "", "session token (default: $"+TokenEnv+")")

	cmd.AddCommand(c.newRegisterCmd())
	cmd.AddCommand(c.newLoginCmd())
	cmd.AddCommand(c.newLogoutCmd(session))
	cmd.AddCommand(c.newLogoutAllCmd(session))
	cmd.AddCommand(c.newShowCmd(session))
	cmd.AddCommand(c.newUpdateCmd(session))
	cmd.AddCommand(c.newDeleteCmd(session))
	cmd.AddCommand(c.newAvatarCmd(session))
	return cmd
}

type registerOptions struct {
	name     string
	email    string
	password string
	age      int
}

func (c *cli) newRegisterCmd() *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and print its first session token",
		Long: `Create an account and print the public user with a session token.
The password is read from the first line of standard input when --password
is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.password(opts.password)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app *App) error {
				result, err := app.Service.Register(ctx, account.RegisterRequest{
					Name:     opts.name,
					Email:    opts.email,
					Password: password,
					Age:      opts.age,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "password (default: first line of stdin)")
	cmd.Flags().IntVar(&opts.age, "age", 0, "age in years")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) newLoginCmd() *cobra.Command {
	var email, passwordFlag string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.password(passwordFlag)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app *App) error {
				result, err := app.Service.Login(ctx, email, password)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&passwordFlag, "password", "", "password (default: first line of stdin)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) newLogoutCmd(session *sessionOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, token string) error {
				if err := app.Service.Logout(ctx, user.ID, token); err != nil {
					return err
				}
				cmd.Println("Logged out")
				return nil
			})
		},
	}
}

func (c *cli) newLogoutAllCmd(session *sessionOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout-all",
		Short: "Revoke every session token of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				if err := app.Service.LogoutAll(ctx, user.ID); err != nil {
					return err
				}
				cmd.Println("Logged out of all sessions")
				return nil
			})
		},
	}
}

func (c *cli) newShowCmd(session *sessionOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the authenticated profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				profile, err := app.Service.Profile(ctx, user.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd, profile)
			})
		},
	}
}

func (c *cli) newUpdateCmd(session *sessionOptions) *cobra.Command {
	var sets []string
	var data string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields",
		Long: `Change any of name, email, password, and age. Fields come from repeated
--set key=value pairs or a --data JSON object. Any other field rejects the
whole update.`,
		Example: `  taskcrusher user update --set name=Alice --set age=31
  taskcrusher user update --data '{"email":"alice@example.com"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := parseUpdateFields(sets, data)
			if err != nil {
				return err
			}
			changes, err := account.ParseProfileChanges(fields)
			if err != nil {
				return err
			}
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				updated, err := app.Service.UpdateProfile(ctx, user.ID, changes)
				if err != nil {
					return err
				}
				return printJSON(cmd, updated)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field to change as key=value (repeatable)")
	cmd.Flags().StringVar(&data, "data", "", "fields to change as a JSON object")
	return cmd
}

func (c *cli) newDeleteCmd(session *sessionOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the account and every task it owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				deleted, err := app.Service.DeleteAccount(ctx, user.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd, deleted)
			})
		},
	}
}

// withSession authenticates the session token and hands the caller to fn.
func (c *cli) withSession(cmd *cobra.Command, session *sessionOptions,
	fn func(ctx context.Context, app *App, user account.PublicUser, token string) error,
) error {
	token, err := session.resolve()
	if err != nil {
		return err
	}
	return c.withApp(cmd, func(ctx context.Context, app *App) error {
		user, err := app.Service.Authenticate(ctx, token)
		if err != nil {
			return err
		}
		return fn(ctx, app, user, token)
	})
}

// password returns flag, or the first line of Stdin when flag is empty.
func (c *cli) password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(c.deps.Stdin).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", oops.Code("PASSWORD_REQUIRED").
			Wrapf(account.ErrValidation, "password is required (--password or stdin)")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseUpdateFields merges --data and --set into one field map. A --set
// pair wins over the same key in --data.
func parseUpdateFields(sets []string, data string) (map[string]any, error) {
	fields := make(map[string]any)
	if data != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(data)))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, oops.Code("USER_INVALID_UPDATE").
				Wrapf(account.ErrValidation, "--data must be a JSON object")
		}
		if fields == nil {
			fields = make(map[string]any)
		}
	}
	for _, pair := range sets {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, oops.Code("USER_INVALID_UPDATE").With("pair", pair).
				Wrapf(account.ErrValidation, "--set expects key=value")
		}
		fields[strings.TrimSpace(key)] = value
	}
	if len(fields) == 0 {
		return nil, oops.Code("USER_INVALID_UPDATE").
			Wrapf(account.ErrValidation, "nothing to update")
	}
	return fields, nil
}
