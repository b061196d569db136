// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/castellan-dev/castellan/internal/i18n"
	"github.com/castellan-dev/castellan/internal/trust"
	"github.com/castellan-dev/castellan/internal/tunnel"
)

// trustHostCmd represents the 'trust-host' command. It performs the
// first-contact host key exchange: probe, show the fingerprint, ask, save.
var trustHostCmd = &cobra.Command{
	Use:   "trust-host <host[:port]>",
	Short: "Adds a host's public key to the trust database",
	Long: `Connects to a host for the first time through the relay, retrieves its
public key and prompts to save it. This is a required step before
Castellan will open sessions to a new host; unknown hosts fail closed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, port := splitHostArg(args[0])
		addr := net.JoinHostPort(host, strconv.Itoa(port))

		fmt.Println(i18n.T("trust.probing", addr))
		dialer := &tunnel.Dialer{RelayURL: appConfig.RelayURL}
		conn, err := dialer.Dial(cmd.Context(), host, port)
		if err != nil {
			return err
		}
		key, err := trust.ProbeHostKey(conn, addr)
		if err != nil {
			return err
		}

		fingerprint := ssh.FingerprintSHA256(key)
		fmt.Printf("The authenticity of host '%s' can't be established.\n", addr)
		fmt.Printf("Key fingerprint: %s\n", fingerprint)

		ans := promptForConfirmation("Are you sure you want to continue connecting (yes/no)? ")
		if ans != "yes" && ans != "y" {
			fmt.Println("Cancelled.")
			return nil
		}

		keyStr := string(ssh.MarshalAuthorizedKey(key))
		if err := trust.Default().SetHostKey(cmd.Context(), host, keyStr); err != nil {
			return err
		}
		fmt.Println(i18n.T("trust.added", host, fingerprint))
		return nil
	},
}

// splitHostArg splits host[:port], defaulting the port to 22.
func splitHostArg(s string) (string, int) {
	if host, portStr, err := net.SplitHostPort(s); err == nil {
		if port, perr := strconv.Atoi(portStr); perr == nil && port > 0 && port <= 65535 {
			return host, port
		}
	}
	return s, 22
}

// promptForConfirmation reads one line from stdin and lowercases it.
func promptForConfirmation(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Manages the trusted host key database",
	}
	cmd.AddCommand(
		newTrustListCmd(),
		newTrustRemoveCmd(),
		newTrustExportCmd(),
		newTrustImportCmd(),
	)
	return cmd
}

func newTrustListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists all trusted host keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := trust.Default().ListHostKeys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fingerprint := ""
				if pub, _, _, _, perr := ssh.ParseAuthorizedKey([]byte(k.PublicKey)); perr == nil {
					fingerprint = ssh.FingerprintSHA256(pub)
				}
				fmt.Printf("%-30s %s  added %s\n", k.Hostname, fingerprint, k.AddedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newTrustRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <host>",
		Short: "Forgets the trusted key for a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := trust.Default().RemoveHostKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(i18n.T("trust.removed", args[0]))
			return nil
		},
	}
}

func newTrustExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Exports the trust database to a compressed backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("could not create backup file: %w", err)
			}
			defer func() {
				if cerr := f.Close(); cerr != nil {
					log.Errorf("Error closing backup file: %v", cerr)
				}
			}()

			n, err := trust.Export(cmd.Context(), trust.Default(), f)
			if err != nil {
				return err
			}
			fmt.Println(i18n.T("trust.exported", n, args[0]))
			return nil
		},
	}
}

func newTrustImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Imports trusted host keys from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("could not open backup file: %w", err)
			}
			defer func() { _ = f.Close() }()

			n, err := trust.Import(cmd.Context(), trust.Default(), f)
			if err != nil {
				return err
			}
			fmt.Println(i18n.T("trust.imported", n, args[0]))
			return nil
		},
	}
}
