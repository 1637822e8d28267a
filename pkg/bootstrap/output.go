package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

// PrintBootstrapResult displays the bootstrap results on stdout
func PrintBootstrapResult(result *AdminBootstrapResult) {
	FprintBootstrapResult(os.Stdout, result)
}

// FprintBootstrapResult writes the bootstrap results to w
func FprintBootstrapResult(w io.Writer, result *AdminBootstrapResult) {
	if result == nil || !result.UserCreated {
		return
	}

	printSectionHeader(w, "ADMIN BOOTSTRAP COMPLETED")
	printUserSection(w, result)
	printSecurityWarnings(w, result)
	printSectionFooter(w)
}

func printSectionHeader(w io.Writer, title string) {
	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\n", border)
	fmt.Fprintf(w, "🚀 %s\n", title)
	fmt.Fprintf(w, "%s\n", border)
}

func printSectionFooter(w io.Writer) {
	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "%s\n\n", border)
}

func printUserSection(w io.Writer, result *AdminBootstrapResult) {
	fmt.Fprintln(w, "\n👤 Admin Actor:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "  Actor ID:  %s\n", result.ActorID)
	fmt.Fprintf(w, "  Email:     %s\n", result.Email)
	fmt.Fprintf(w, "  Context:   admin\n")

	// Only display password if it was auto-generated (not from environment)
	if !result.PasswordFromEnv {
		fmt.Fprintf(w, "  Password:  %s\n", result.Password)
	} else {
		fmt.Fprintf(w, "  Password:  (configured via PORTAL_MFA_ADMIN_PASSWORD environment variable)\n")
	}
}

func printSecurityWarnings(w io.Writer, result *AdminBootstrapResult) {
	fmt.Fprintln(w, "\n⚠️  SECURITY REMINDERS:")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	if result.PasswordFromEnv {
		fmt.Fprintln(w, "  • Admin password was set via environment variable")
		fmt.Fprintln(w, "  • Ensure PORTAL_MFA_ADMIN_PASSWORD is removed from .env after first login")
	} else {
		fmt.Fprintln(w, "  • THIS PASSWORD WILL NOT BE DISPLAYED AGAIN - SAVE IT NOW!")
		fmt.Fprintln(w, "  • Store credentials in a secure password manager")
	}
	if !result.Persisted {
		fmt.Fprintln(w, "  • No actors file is configured: this admin only lives until the process exits")
	}
	fmt.Fprintln(w, "  • Enroll an authenticator app for the admin account after first login")
}

// LogBootstrapSummary logs a concise summary using slog (for structured logging)
func LogBootstrapSummary(result *AdminBootstrapResult) {
	if result == nil || !result.UserCreated {
		return
	}

	// Log without sensitive information (password)
	slog.Info("Admin bootstrap summary",
		"actor_id", result.ActorID,
		"admin_email", utils.MaskEmail(result.Email),
		"persisted", result.Persisted,
		"password_from_env", result.PasswordFromEnv,
	)
}
