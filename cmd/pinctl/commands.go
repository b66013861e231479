package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	"wuyrush.io/pinboard/app"
	"wuyrush.io/pinboard/identity"
	md "wuyrush.io/pinboard/models"
)

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pinctl",
		Short:         "Administer a pinboard deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.AddCommand(
		newMigrateCmd(),
		newProfilesCmd(out),
		newFeedCmd(out),
		newTokenCmd(out),
		newVersionCmd(out),
	)
	return rootCmd
}

// withApp runs f against an App wired from current configuration
func withApp(cmd *cobra.Command, f func(a *app.App) error) error {
	a, err := app.Setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return f(a)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables, databases and indexes of the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context())
		},
	}
}

func newProfilesCmd(out io.Writer) *cobra.Command {
	profilesCmd := &cobra.Command{Use: "profiles", Short: "Profile operations"}

	var p md.Profile
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				if perr := a.Profiles.Create(cmd.Context(), &p); perr != nil {
					return perr
				}
				return printJSON(out, p)
			})
		},
	}
	createCmd.Flags().StringVarP(&p.ID, "id", "i", "", "User ID (required)")
	createCmd.Flags().StringVarP(&p.Username, "username", "u", "", "Username (required)")
	createCmd.Flags().StringVarP(&p.Email, "email", "e", "", "Email")
	_ = createCmd.MarkFlagRequired("id")
	_ = createCmd.MarkFlagRequired("username")

	getCmd := &cobra.Command{
		Use:   "get USERNAME",
		Short: "Get profile by username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				p, perr := a.Profiles.GetByUsername(cmd.Context(), args[0])
				if perr != nil {
					return perr
				}
				return printJSON(out, p)
			})
		},
	}
	profilesCmd.AddCommand(createCmd, getCmd)
	return profilesCmd
}

func newFeedCmd(out io.Writer) *cobra.Command {
	var viewerID string
	feedCmd := &cobra.Command{Use: "feed", Short: "Print feeds as a viewer would see them"}
	feedCmd.PersistentFlags().StringVarP(&viewerID, "viewer", "v", "", "User ID of the viewer, anonymous if empty")

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the most recent pins of all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				items, perr := a.Feeds.DiscoveryFeed(cmd.Context(), viewerID)
				if perr != nil {
					return perr
				}
				return printJSON(out, items)
			})
		},
	}
	ownCmd := &cobra.Command{
		Use:   "own USER_ID",
		Short: "Print the feed of a user's own pins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				items, perr := a.Feeds.OwnFeed(cmd.Context(), args[0])
				if perr != nil {
					return perr
				}
				return printJSON(out, items)
			})
		},
	}
	profileCmd := &cobra.Command{
		Use:   "profile USERNAME",
		Short: "Print the profile feed of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				items, perr := a.Feeds.ProfileFeed(cmd.Context(), args[0], viewerID)
				if perr != nil {
					return perr
				}
				return printJSON(out, items)
			})
		},
	}
	feedCmd.AddCommand(discoverCmd, ownCmd, profileCmd)
	return feedCmd
}

func newTokenCmd(out io.Writer) *cobra.Command {
	var userID, username string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a session token accepted under PIN_IDENTITY=jwt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.NewJWTProvider()
			if err != nil {
				return err
			}
			tok, perr := p.Token(&identity.Session{UserID: userID, Username: username})
			if perr != nil {
				return perr
			}
			_, err = fmt.Fprintln(out, tok)
			return err
		},
	}
	tokenCmd.Flags().StringVarP(&userID, "user-id", "i", "", "User ID (required)")
	tokenCmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	_ = tokenCmd.MarkFlagRequired("user-id")
	return tokenCmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(out, version.Print("pinctl"))
			return err
		},
	}
}
