package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/store/filestore"
)

const usage = `usage: authcli [flags] <command>

commands:
  login <username>   authenticate and store the session
  whoami             show the current user
  logout             end the session (server call is best effort)
  change-password    change the current user's password
  watch              keep the session alive until interrupted
`

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authcli failed")
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.New()

	identityURL := pflag.String("identity-url", cfg.GetIdentityBaseURL(), "base URL of the identity service")
	dataFolder := pflag.String("data", cfg.GetDataFolder(), "folder holding stored credentials")
	logLevel := pflag.String("log-level", cfg.GetLogLevel(), "log level (debug, info, warn, error)")
	allDevices := pflag.Bool("all-devices", false, "logout: also revoke sessions on other devices")
	pflag.Parse()

	logger := newLogger(cfg.GetEnv(), *logLevel)

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	credStore, err := filestore.New(*dataFolder)
	if err != nil {
		return err
	}

	client := identity.NewHTTPClient(*identityURL, identity.WithTimeout(cfg.GetHTTPTimeout()))
	manager, err := session.NewManager(credStore, client,
		session.WithLogger(logger),
		session.WithRefreshInterval(cfg.GetRefreshInterval()),
	)
	if err != nil {
		return err
	}
	defer manager.Close()

	ctx := context.Background()

	switch args[0] {
	case "login":
		if len(args) < 2 {
			return fmt.Errorf("login requires a username")
		}
		displayAppname(cfg.GetAppName())
		password := prompt("Password: ")
		if err := manager.Login(ctx, args[1], password); err != nil {
			return err
		}
		user := manager.User()
		fmt.Printf("Logged in as %s (%s)\n", user.DisplayName, user.Role)
		return nil

	case "whoami":
		user, err := manager.CurrentUser(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s> role=%s", user.DisplayName, user.Email, user.Role)
		if user.Department != "" {
			fmt.Printf(" department=%s", user.Department)
		}
		fmt.Println()
		return nil

	case "logout":
		manager.Logout(ctx, *allDevices)
		fmt.Println("Logged out")
		return nil

	case "change-password":
		current := prompt("Current password: ")
		next := prompt("New password: ")
		if err := manager.ChangePassword(ctx, current, next); err != nil {
			return err
		}
		fmt.Println("Password changed")
		return nil

	case "watch":
		if !manager.Bootstrap(ctx) {
			return fmt.Errorf("no stored session, login first")
		}
		user := manager.User()
		logger.Info().Str("user", user.Username).Msg("session restored, refreshing in background")
		waitForStopSignal()
		return nil

	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// newLogger writes human-readable output in DEV and structured JSON in
// every other environment.
func newLogger(env, level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr)
	if env == "DEV" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(parsed).With().Timestamp().Logger()
}

func prompt(label string) string {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
