// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/internal/account"
)

// newAvatarCmd creates the user avatar subcommand and its children.
func (c *cli) newAvatarCmd(session *sessionOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avatar",
		Short: "Upload, clear, or fetch an avatar image",
	}

	upload := &cobra.Command{
		Use:   "upload FILE",
		Short: "Store a PNG or JPEG as the avatar",
		Long: `Store an image as the avatar. It is center-cropped to a square,
resized, and kept as PNG.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0]) //nolint:gosec // path is operator supplied
			if err != nil {
				return oops.Code("AVATAR_READ_FAILED").With("file", args[0]).Wrap(err)
			}
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				if err := app.Service.UploadAvatar(ctx, user.ID, raw, filepath.Base(args[0])); err != nil {
					return err
				}
				cmd.Println("Avatar uploaded")
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				if err := app.Service.ClearAvatar(ctx, user.ID); err != nil {
					return err
				}
				cmd.Println("Avatar cleared")
				return nil
			})
		},
	}

	var output string
	fetch := &cobra.Command{
		Use:   "fetch [USER_ID]",
		Short: "Write a user's avatar PNG to a file",
		Long: `Write the avatar of USER_ID, or of the authenticated user when no ID is
given, to the --output file. Avatars are public.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			write := func(ctx context.Context, app *App, id ulid.ULID) error {
				png, err := app.Service.FetchAvatar(ctx, id)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, png, 0o600); err != nil {
					return oops.Code("AVATAR_WRITE_FAILED").With("file", output).Wrap(err)
				}
				cmd.Printf("Avatar written to %s\n", output)
				return nil
			}
			if len(args) == 0 {
				return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
					return write(ctx, app, user.ID)
				})
			}
			id, err := ulid.ParseStrict(args[0])
			if err != nil {
				return oops.Code("USER_INVALID_ID").With("id", args[0]).Wrapf(account.ErrValidation, "invalid user id")
			}
			return c.withApp(cmd, func(ctx context.Context, app *App) error {
				return write(ctx, app, id)
			})
		},
	}
	fetch.Flags().StringVarP(&output, "output", "o", "avatar.png", "destination file")

	cmd.AddCommand(upload, clearCmd, fetch)
	return cmd
}
