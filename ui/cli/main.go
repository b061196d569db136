// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for Castellan using the
// Cobra library. It defines the root command, subcommands (shell, files,
// trust-host, trust) and the shared setup that runs before every command.

package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	log "github.com/charmbracelet/log"

	"github.com/castellan-dev/castellan/internal/config"
	"github.com/castellan-dev/castellan/internal/i18n"
	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/session"
	"github.com/castellan-dev/castellan/internal/signer"
	"github.com/castellan-dev/castellan/internal/trust"
	"github.com/castellan-dev/castellan/internal/tunnel"
)

var version = "dev" // this will be set by the linker

var cfgFile string
var verbose bool

var appConfig config.Config

// setupDefaultServices loads the configuration, initializes i18n and opens
// the trust store. Every subcommand runs this first.
func setupDefaultServices(cmd *cobra.Command, args []string) error {
	var err error
	appConfig, err = config.Load(cmd, cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// First run, or the config file was deleted. Persist the resolved
	// configuration so subsequent runs have a file to inspect.
	if writeErr := config.EnsureFile(&appConfig); writeErr != nil {
		log.Warnf("Warning: could not write default config file: %v", writeErr)
	}

	if verbose || appConfig.Debug {
		logging.SetDebug(true)
	}

	i18n.Init(appConfig.Language)

	if !trust.IsInitialized() {
		if err := trust.Init(appConfig.Database.Type, appConfig.Database.DSN); err != nil {
			return errors.New(i18n.T("config.error_init_db", err))
		}
	}

	return nil
}

// Execute runs the CLI entrypoint. The main package should call this
// function and handle process exit.
func Execute() error {
	rootCmd := NewRootCmd()

	defer func() {
		if s := trust.Default(); s != nil {
			if err := s.Close(); err != nil {
				log.Errorf("Error closing trust store: %v", err)
			}
		}
	}()

	return rootCmd.Execute()
}

// NewRootCmd creates and configures a new root cobra command. Used for the
// main application command as well as fresh instances in tests.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "castellan",
		Short: "Castellan is an SSH client whose keys live on a custody network.",
		Long: `Castellan opens SSH sessions without ever holding a private key.
Authentication challenges are forwarded to a distributed custody network
that applies policy, optionally waits for operator approval, and returns
only the signature. Transport runs through a WebSocket relay, so Castellan
works from networks that only speak HTTPS.

Host keys are pinned in a local trust database; unknown hosts fail closed
until 'castellan trust-host' records them.`,
		PersistentPreRunE: setupDefaultServices,
		SilenceUsage:      true,
	}

	cmd.Version = version

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) output")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `CLI language ("en", "de")`)
	cmd.PersistentFlags().String("relay_url", "", "WebSocket relay base URL")
	cmd.PersistentFlags().String("custody_url", "", "Custody network API base URL")
	cmd.PersistentFlags().String("policy_url", "", "Policy store base URL (empty disables policy lookups)")
	cmd.PersistentFlags().String("database.type", "sqlite", "Trust database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database.dsn", "./castellan.db", "Trust database connection string (DSN)")

	cmd.AddCommand(
		newShellCmd(),
		newFilesCmd(),
		trustHostCmd,
		newTrustCmd(),
	)

	return cmd
}

// target is a parsed user@host[:port] destination.
type target struct {
	User string
	Host string
	Port int
}

// parseTarget splits user@host[:port]; the port defaults to 22.
func parseTarget(s string) (target, error) {
	t := target{Port: 22}

	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return t, fmt.Errorf("invalid target %q: want user@host[:port]", s)
	}
	t.User = s[:at]
	hostPort := s[at+1:]

	if host, port, err := net.SplitHostPort(hostPort); err == nil {
		p, perr := strconv.Atoi(port)
		if perr != nil || p <= 0 || p > 65535 {
			return t, fmt.Errorf("invalid port in target %q", s)
		}
		t.Host = host
		t.Port = p
	} else {
		t.Host = hostPort
	}

	if t.Host == "" {
		return t, fmt.Errorf("invalid target %q: empty host", s)
	}
	return t, nil
}

// Addr returns the host:port form.
func (t target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// buildSigner assembles the custody signing chain from the configuration
// and returns a factory binding each connect attempt's context.
func buildSigner(cfg config.Config, t target) (session.SignerFactory, error) {
	if cfg.Signer.PublicKey == "" {
		return nil, fmt.Errorf("no public key configured; set signer.public_key")
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.Signer.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("could not parse signer.public_key: %w", err)
	}
	cryptoPub, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %s", pub.Type())
	}
	edPub, ok := cryptoPub.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signer.public_key must be an ed25519 key, got %s", pub.Type())
	}

	token, err := base64.StdEncoding.DecodeString(cfg.Signer.AuthorizerToken)
	if err != nil {
		return nil, fmt.Errorf("could not decode signer.authorizer_token: %w", err)
	}

	if cfg.CustodyURL == "" {
		return nil, fmt.Errorf("no custody network configured; set custody_url")
	}

	adapter := &signer.Adapter{
		Custody:  &signer.HTTPCustodyClient{BaseURL: cfg.CustodyURL},
		Approval: signer.AutoApprove{},
		Tokens:   signer.StaticToken(token),
		Pattern:  signer.RequestPattern(cfg.Signer.Pattern),
		Flow:     signer.AuthFlow(cfg.Signer.Flow),
	}
	if cfg.PolicyURL != "" {
		adapter.Policies = &signer.HTTPPolicyStore{BaseURL: cfg.PolicyURL}
	}

	sshSigner, err := signer.NewSSHSigner(adapter, edPub, t.User, t.Addr())
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) ssh.Signer { return sshSigner.WithContext(ctx) }, nil
}

// newSession wires a Session for the target from the loaded configuration.
func newSession(cfg config.Config, t target) (*session.Session, error) {
	signerFactory, err := buildSigner(cfg, t)
	if err != nil {
		return nil, err
	}
	return session.New(session.Config{
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Dialer:   &tunnel.Dialer{RelayURL: cfg.RelayURL},
		Signer:   signerFactory,
		HostKeys: trust.HostKeyCallback(trust.Default()),
	}), nil
}
