package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/mzahid/dialdesk/internal/config"
	"github.com/mzahid/dialdesk/internal/profile"
	"github.com/mzahid/dialdesk/internal/timefmt"
	"github.com/mzahid/dialdesk/internal/tui"
	"github.com/mzahid/dialdesk/internal/tui/client"
)

func main() {
	_ = godotenv.Load()

	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if loaded, err := config.Load(profile.ConfigPath(profileName)); err == nil {
		cfg = loaded
	}
	cfg.ApplyEnv()
	base := "http://" + cfg.Server.ListenAddr

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(base) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profileName)
		if err := startDaemon(profileName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(base, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c, err := client.New(base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}

	if err := login(c); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	loc := timefmt.LoadLocation(cfg.Display.Timezone)
	app := tui.NewApp(c, profileName, loc)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// login authenticates with the daemon, registering the account on first run.
func login(c *client.Client) error {
	user := os.Getenv("DIALDESK_USER")
	pass := os.Getenv("DIALDESK_PASS")
	if user == "" || pass == "" {
		return fmt.Errorf("DIALDESK_USER and DIALDESK_PASS must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Login(ctx, user, pass); err == nil {
		return nil
	}
	if err := c.Register(ctx, user, pass); err != nil {
		return fmt.Errorf("cannot log in or register %q: %w", user, err)
	}
	return c.Login(ctx, user, pass)
}

// probeDaemon checks if a daemon is serving its API at base.
func probeDaemon(base string) bool {
	httpc := &http.Client{Timeout: 2 * time.Second}
	resp, err := httpc.Get(base + "/api/health")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func startDaemon(profileName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	dialdeskd := filepath.Join(filepath.Dir(executable), "dialdeskd")

	if _, err := os.Stat(dialdeskd); err != nil {
		dialdeskd = "dialdeskd"
	}

	cmd := exec.Command(dialdeskd, "--profile", profileName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon with a real health check (not just a TCP
// connect).
func waitForDaemon(base string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(base) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
