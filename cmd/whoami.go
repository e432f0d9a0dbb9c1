package cmd

import (
	"fmt"
	"strings"
	"time"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/session"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// whoamiCmd shows the account behind the current session, validating it
// against the backend (and refreshing the access token if it has expired).
var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Aliases: []string{"me"},
	Short:   "Show current authenticated account",
	Long: `The whoami command displays the currently authenticated account. It asks
the academy API for your profile, which also renews an expired access token.
When the API cannot be reached, the profile cached at sign-in is shown and
marked as offline.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		user, offline, err := a.auth.WhoAmI(cmd.Context())
		if err != nil {
			if apperrors.Is(err, apperrors.Unauthorized) && a.sess.AccessToken() == "" {
				pterm.Println("🔒 You're not logged in yet!")
				pterm.Println("   Run 'vkbacademy login' to get started.")
				return nil
			}
			return present(err, "checking your session")
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("VKB Academy")).
			Println(describeUser(user, a.sess.AccessToken(), offline, time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

// describeUser renders the whoami box body.
func describeUser(u *session.User, accessToken string, offline bool, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", displayName(u))
	if u.Email != "" && u.Email != displayName(u) {
		fmt.Fprintf(&b, "✉️  %s\n", u.Email)
	}
	if u.Role != "" {
		fmt.Fprintf(&b, "🎓 %s\n", strings.ToLower(u.Role))
	}
	if exp, ok := session.ExpiresAt(accessToken); ok {
		left := exp.Sub(now).Round(time.Second)
		if left > 0 {
			fmt.Fprintf(&b, "⏳ access token expires in %s", left)
		} else {
			b.WriteString("⏳ access token expired; it is renewed on the next request")
		}
	}
	if offline {
		b.WriteString("\n📴 offline: showing the profile saved at sign-in")
	}
	return strings.TrimRight(b.String(), "\n")
}
