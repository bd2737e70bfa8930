package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"budgetwise/internal/api"
	"budgetwise/internal/auth"
	"budgetwise/internal/core"
)

func (r *runner) signupCommand() *cobra.Command {
	var req api.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account (does not sign in)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.Password == "" {
				if req.Password, err = r.readSecret("Password: "); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				if req.ConfirmPassword, err = r.readSecret("Confirm password: "); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			} else if req.ConfirmPassword == "" {
				req.ConfirmPassword = req.Password
			}

			user, err := r.app.Auth.Signup(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out(), "Account created for %s <%s>. Run `budgetwise login --email %s` to sign in.\n",
				user.Name, user.Email, user.Email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "full name")
	f.StringVar(&req.Email, "email", "", "email address")
	f.StringVar(&req.Password, "password", "", "password (prompted when omitted)")
	f.StringVar(&req.Country, "country", "", "country")
	f.StringVar(&req.IncomeRange, "income-range", "", "income range")
	f.StringVar(&req.FinancialGoal, "financial-goal", "", "financial goal")
	f.BoolVar(&req.AgreeToTerms, "agree-to-terms", false, "accept the terms of service")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (r *runner) loginCommand() *cobra.Command {
	var creds auth.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Password == "" {
				p, err := r.readSecret("Password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				creds.Password = p
			}

			if err := r.app.Auth.Login(cmd.Context(), creds); err != nil {
				if ae := api.AsError(err); ae != nil {
					return errors.New(ae.Message)
				}
				return err
			}
			r.app.Auth.Wait()
			select {
			case err := <-r.app.Auth.ProfileErrors():
				fmt.Fprintf(r.opts.Stderr, "warning: profile not loaded: %v\n", err)
			default:
			}

			s := r.app.Auth.Session()
			fmt.Fprintf(r.out(), "Signed in as %s <%s>\n", s.User.Name, s.User.Email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&creds.Email, "email", "", "email address")
	f.StringVar(&creds.Password, "password", "", "password (prompted when omitted)")
	f.BoolVar(&creds.RememberMe, "remember", false, "keep the refresh token valid for longer")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (r *runner) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(r.out(), "Signed out")
			return nil
		},
	}
}

func (r *runner) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			s := r.app.Auth.Session()
			if !s.IsAuthenticated || s.User == nil {
				fmt.Fprintln(r.out(), "Not signed in")
				return nil
			}
			printUser(r, s)
			return nil
		},
	}
}

func printUser(r *runner, s core.Session) {
	w := r.out()
	fmt.Fprintf(w, "%s <%s>\n", s.User.Name, s.User.Email)
	fmt.Fprintf(w, "  id:       %s\n", s.User.ID)
	fmt.Fprintf(w, "  verified: %t\n", s.User.IsVerified)
	if p := s.Profile; p != nil {
		fmt.Fprintf(w, "  currency: %s\n", p.Preferences.Currency)
		fmt.Fprintf(w, "  language: %s\n", p.Preferences.Language)
		if p.Profile.Country != "" {
			fmt.Fprintf(w, "  country:  %s\n", p.Profile.Country)
		}
		fmt.Fprintf(w, "  profile:  %.0f%% complete, %d logins\n", p.Stats.ProfileCompletion, p.Stats.LoginCount)
	}
}

func (r *runner) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Fetch the latest profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !r.app.Auth.IsAuthenticated() {
				return auth.ErrNotAuthenticated
			}
			r.app.Auth.RefreshProfile(cmd.Context())
			printUser(r, r.app.Auth.Session())
			return nil
		},
	}

	var name, phone, bio, country, dob string
	personal := &cobra.Command{
		Use:   "set-personal",
		Short: "Update personal details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			upd := api.PersonalUpdate{
				Name:        changedString(f.Changed("name"), name),
				Phone:       changedString(f.Changed("phone"), phone),
				Bio:         changedString(f.Changed("bio"), bio),
				Country:     changedString(f.Changed("country"), country),
				DateOfBirth: changedString(f.Changed("date-of-birth"), dob),
			}
			if err := r.app.Auth.UpdatePersonal(cmd.Context(), upd); err != nil {
				return err
			}
			fmt.Fprintln(r.out(), "Profile updated")
			return nil
		},
	}
	pf := personal.Flags()
	pf.StringVar(&name, "name", "", "full name")
	pf.StringVar(&phone, "phone", "", "phone number")
	pf.StringVar(&bio, "bio", "", "short bio")
	pf.StringVar(&country, "country", "", "country")
	pf.StringVar(&dob, "date-of-birth", "", "date of birth (YYYY-MM-DD)")

	var currency, language string
	var emailNotif, alerts, weekly, newsletter bool
	prefs := &cobra.Command{
		Use:   "set-preferences",
		Short: "Update preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			upd := api.PreferencesUpdate{
				Currency:           changedString(f.Changed("currency"), strings.ToUpper(currency)),
				Language:           changedString(f.Changed("language"), language),
				EmailNotifications: changedBool(f.Changed("email-notifications"), emailNotif),
				BudgetAlerts:       changedBool(f.Changed("budget-alerts"), alerts),
				WeeklyReports:      changedBool(f.Changed("weekly-reports"), weekly),
				Newsletter:         changedBool(f.Changed("newsletter"), newsletter),
			}
			if err := r.app.Auth.UpdatePreferences(cmd.Context(), upd); err != nil {
				return err
			}
			fmt.Fprintln(r.out(), "Preferences updated")
			return nil
		},
	}
	ef := prefs.Flags()
	ef.StringVar(&currency, "currency", "", "ISO currency code")
	ef.StringVar(&language, "language", "", "language code")
	ef.BoolVar(&emailNotif, "email-notifications", false, "email notifications")
	ef.BoolVar(&alerts, "budget-alerts", false, "budget alerts")
	ef.BoolVar(&weekly, "weekly-reports", false, "weekly reports")
	ef.BoolVar(&newsletter, "newsletter", false, "newsletter")

	cmd.AddCommand(show, personal, prefs)
	return cmd
}

func changedString(changed bool, v string) *string {
	if !changed {
		return nil
	}
	return &v
}

func changedBool(changed bool, v bool) *bool {
	if !changed {
		return nil
	}
	return &v
}
