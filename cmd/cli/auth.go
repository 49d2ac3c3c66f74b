package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/bili-comment/internal/auth"
	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/poll"
)

var checkLogin bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in by scanning a QR code",
	Long:  `Print a login QR code and wait until it is confirmed in the bilibili app, expires, or fails.`,
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved login",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	whoamiCmd.Flags().BoolVar(&checkLogin, "check", false, "also verify that the saved login still works")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	session := auth.NewSession(e.gw, e.logger)
	qr, err := session.RequestQR(ctx)
	if err != nil {
		return fmt.Errorf("failed to get login QR code: %w", err)
	}

	code, err := qrcode.New(qr.URL, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to render QR code: %w", err)
	}
	fmt.Println(code.ToSmallString(false))
	fmt.Println(auth.ScanPrompt)
	fmt.Printf("Or open: %s\n\n", qr.URL)

	var last domain.LoginStatus
	session.OnChange(func(s auth.Snapshot) {
		if s.Status == last || s.Phase == auth.PhaseIdle {
			return
		}
		last = s.Status
		switch s.Status {
		case domain.LoginStatusScanned:
			fmt.Println("Scanned, confirm the login in the app...")
		case domain.LoginStatusWaiting:
			fmt.Println("Waiting for scan...")
		}
	})

	done := make(chan domain.LoginStatus, 1)
	watcher := auth.NewWatcher(session, poll.RealScheduler, e.cfg.LoginPollInterval)
	watcher.Start(ctx, func(status domain.LoginStatus) { done <- status })
	defer watcher.Stop()

	var status domain.LoginStatus
	select {
	case status = <-done:
	case <-ctx.Done():
		return errors.New("login interrupted")
	}

	switch status {
	case domain.LoginStatusConfirmed:
		session.WaitIdentity()
		snap := session.Snapshot()
		if snap.Identity == nil {
			fmt.Println("Login confirmed.")
			return nil
		}
		if outputJSON {
			return printJSON(snap.Identity)
		}
		fmt.Printf("Logged in as %s (mid %d)\n", snap.Identity.DisplayName, snap.Identity.ID)
		return nil
	case domain.LoginStatusExpired:
		return errors.New("QR code expired, run login again")
	default:
		return fmt.Errorf("login failed: %s", session.Snapshot().Message)
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	if err := auth.NewSession(e.gw, e.logger).Logout(cmd.Context()); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	session := auth.NewSession(e.gw, e.logger)
	user, err := session.FetchUserInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}

	valid := user != nil && user.IsAuthenticated
	if checkLogin {
		valid = session.CheckValidity(ctx)
	}

	if outputJSON {
		return printJSON(struct {
			User  *domain.UserIdentity `json:"user"`
			Valid bool                 `json:"valid"`
		}{user, valid})
	}

	if user == nil || !user.IsAuthenticated {
		fmt.Println("Not logged in.")
		return nil
	}

	table := newTable("Field", "Value")
	table.Append([]string{"Name", user.DisplayName})
	table.Append([]string{"MID", fmt.Sprintf("%d", user.ID)})
	table.Append([]string{"Avatar", user.AvatarURL})
	if checkLogin {
		table.Append([]string{"Login valid", fmt.Sprintf("%t", valid)})
	}
	table.Render()
	return nil
}
