package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/techsync/session"
	"github.com/jmcleod/techsync/validate"
)

func newLoginCmd(o *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			var err error
			if email == "" {
				if email, err = p.line("Email: "); err != nil {
					return err
				}
			}
			password, err := p.password("Password: ")
			if err != nil {
				return err
			}

			return o.withApp(func(a *app) error {
				if err := a.session.Login(cmd.Context(), email, password); err != nil {
					return err
				}
				printWelcome(cmd.OutOrStdout(), a.session.State())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	return cmd
}

func newRegisterCmd(o *options) *cobra.Command {
	var email, fullName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a technician account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			var err error
			if fullName == "" {
				if fullName, err = p.line("Full name: "); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = p.line("Email: "); err != nil {
					return err
				}
			}
			password, err := p.password("Password: ")
			if err != nil {
				return err
			}
			confirm, err := p.password("Confirm password: ")
			if err != nil {
				return err
			}
			if err := validate.Registration(email, password, confirm, fullName); err != nil {
				return err
			}

			return o.withApp(func(a *app) error {
				if err := a.session.Register(cmd.Context(), email, password, fullName); err != nil {
					return err
				}
				printWelcome(cmd.OutOrStdout(), a.session.State())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&fullName, "name", "", "Full name")
	return cmd
}

func newLogoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				if err := a.session.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				if err := a.requireSession(cmd.Context()); err != nil {
					return err
				}
				u := a.session.User()
				if u == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Signed in; profile unavailable right now.")
					return nil
				}
				printUser(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
}

func printWelcome(w io.Writer, st session.State) {
	if st.User == nil {
		fmt.Fprintln(w, "Logged in.")
		return
	}
	fmt.Fprintf(w, "Welcome, %s!\n", st.User.FullName)
}

func printUser(w io.Writer, u *session.User) {
	fmt.Fprintf(w, "Name:   %s\n", u.FullName)
	fmt.Fprintf(w, "Email:  %s\n", u.Email)
	fmt.Fprintf(w, "Role:   %s\n", u.Role)
	active := "yes"
	if !u.IsActive {
		active = "no"
	}
	fmt.Fprintf(w, "Active: %s\n", active)
}
