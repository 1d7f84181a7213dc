// Package main provides the entry point for the ISBoxer EVE Launcher CLI.
// It manages stored EVE Online accounts, runs the SSO login flow against the
// selected environment, and prints the resulting access token for the game
// launch step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/account"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/auth/eve"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/browser"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/buildinfo"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/config"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/logging"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/prompt"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

// main parses command-line flags, loads configuration, and dispatches to an
// account-management action or a login.
func main() {
	fmt.Println(buildinfo.Banner())

	var (
		configPath   string
		sisi         bool
		loginUser    string
		addUser      string
		removeUser   string
		listAccounts bool
		debug        bool
	)

	flag.StringVar(&configPath, "config", config.DefaultPath(), "Path to the settings file")
	flag.BoolVar(&sisi, "sisi", false, "Use the Singularity test server")
	flag.StringVar(&loginUser, "login", "", "Log the named account in and print its access token")
	flag.StringVar(&addUser, "add-account", "", "Add the named account and store its password encrypted")
	flag.StringVar(&removeUser, "remove-account", "", "Remove the named account and wipe its secrets")
	flag.BoolVar(&listAccounts, "list", false, "List stored accounts")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	// .env may carry the config path in managed setups.
	if err := godotenv.Load(); err == nil {
		if env := os.Getenv("ISBOXER_CONFIG"); env != "" && configPath == config.DefaultPath() {
			configPath = env
		}
	}

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.LoggingToFile {
		if err = logging.ConfigureLogOutput(true, cfg.LogFile()); err != nil {
			log.Warnf("file logging unavailable: %v", err)
		}
	}
	if sisi {
		cfg.UseSingularity = true
	}

	store, err := account.NewFileStore(cfg.AccountsFile)
	if err != nil {
		log.Fatalf("failed to open accounts file: %v", err)
	}

	term := prompt.New()
	keys := prompt.NewUnlocker(cfg, term)

	switch {
	case addUser != "":
		if err = addAccount(store, term, keys, addUser); err != nil {
			log.Fatalf("add account: %v", err)
		}
	case removeUser != "":
		if err = store.Remove(removeUser); err != nil {
			log.Fatalf("remove account: %v", err)
		}
		fmt.Printf("Removed %s.\n", removeUser)
	case listAccounts:
		for _, a := range store.All() {
			saved := " "
			if a.EncryptedPassword.Valid() {
				saved = "*"
			}
			fmt.Printf("%s %s\n", saved, a.Username)
		}
	case loginUser != "":
		if err = login(cfg, store, term, keys, loginUser); err != nil {
			log.Fatalf("login: %v", err)
		}
	default:
		flag.Usage()
	}
}

// addAccount records an account and, when the vault is unlocked, stores its
// password encrypted so future logins skip the prompt.
func addAccount(store *account.FileStore, term *prompt.Terminal, keys *prompt.Unlocker, username string) error {
	if store.Find(username) != nil {
		return fmt.Errorf("account %s already exists", username)
	}
	acct := account.New(username)

	password, ok := term.PromptPassword(username)
	if !ok {
		return fmt.Errorf("no password entered")
	}
	acct.SetPassword(password)
	defer acct.ForgetSecrets()

	if keys.RequestKey() {
		if err := acct.PrepareStorage(keys.Key()); err != nil {
			return fmt.Errorf("encrypt password: %w", err)
		}
	} else {
		log.Warn("master passphrase unavailable; the password will not be saved")
	}
	if err := store.Store(acct); err != nil {
		return err
	}
	fmt.Printf("Added %s.\n", username)
	return nil
}

// login runs the SSO flow for one account and prints the resulting token.
func login(cfg *config.Config, store *account.FileStore, term *prompt.Terminal, keys *prompt.Unlocker, username string) error {
	acct := store.Find(username)
	if acct == nil {
		acct = account.New(username)
	}

	env := eve.EnvironmentFor(cfg.UseSingularity)
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	flow, err := eve.NewFlow(env, acct, term, store, keys, timeout)
	if err != nil {
		return err
	}

	token, err := flow.Login(context.Background())
	if err != nil {
		result := eve.ResultOf(err)
		if result == eve.ResultEmailVerificationRequired {
			// The verification link lives on the account site.
			_ = browser.OpenURL(env.BaseURL)
		}
		var le *eve.LoginError
		if errors.As(err, &le) && le.Body != "" {
			log.Debugf("server response preserved for diagnostics (%d bytes) from %s", len(le.Body), le.URI)
		}
		return fmt.Errorf("%s", result)
	}

	fmt.Printf("Access token for %s on %s (expires %s):\n%s\n",
		username, env.Name, token.ExpiresAt.Format(time.RFC3339), token.Value)
	return nil
}
