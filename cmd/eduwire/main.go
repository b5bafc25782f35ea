// Command eduwire is a diagnostic CLI for the EduWire admin API. It drives
// the same client library the admin UI uses, which makes it handy for
// probing authentication, cache behavior and backend health from a shell.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ambiyansyah-risyal/eduwire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var clientErr *eduwire.ClientError
		if errors.As(err, &clientErr) {
			fmt.Fprintf(os.Stderr, "error (%s): %s\n", clientErr.Type, clientErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eduwire",
		Short:         "Diagnostic client for the EduWire admin API",
		Version:       eduwire.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("base-url", "", "API base URL (overrides config)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	_ = viper.BindPFlag("base_url", root.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("debug", root.PersistentFlags().Lookup("debug"))

	cobra.OnInitialize(initConfig)

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newGetCmd(),
		newWatchCmd(),
		newStatusCmd(),
	)

	return root
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.eduwire")
	}
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("EDUWIRE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("timeout", "30s")
	viper.SetDefault("max_retries", 3)

	// The config file is optional; env and flags are enough.
	_ = viper.ReadInConfig()
}

func newClient() (*eduwire.Client, error) {
	baseURL := viper.GetString("base_url")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL not set (flag --base-url, env EDUWIRE_BASE_URL, or config file)")
	}

	credPath, err := eduwire.DefaultCredentialPath()
	if err != nil {
		return nil, err
	}

	options := []eduwire.Option{
		eduwire.WithCredentialStore(eduwire.NewFileCredentialStore(credPath)),
		eduwire.WithTimeout(viper.GetDuration("timeout")),
		eduwire.WithMaxRetries(viper.GetInt("max_retries")),
	}

	if viper.GetBool("debug") {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		options = append(options,
			eduwire.WithLogger(eduwire.NewZapLogger(logger)),
			eduwire.WithDebug(),
		)
	}

	client := eduwire.New(baseURL, options...)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			if username == "" {
				fmt.Fprint(cmd.OutOrStdout(), "username: ")
				if _, err := fmt.Fscanln(cmd.InOrStdin(), &username); err != nil {
					return err
				}
			}

			fmt.Fprint(cmd.OutOrStdout(), "password: ")
			password, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if err := client.Login(cmd.Context(), username, string(password)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Issue a GET request and print the normalized payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			resp, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var pretty json.RawMessage = resp.Data
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				// Non-JSON payload; print as-is.
				fmt.Fprintln(cmd.OutOrStdout(), string(resp.Data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream realtime notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			rt, err := client.Realtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rt.Connect(ctx); err != nil {
				return err
			}

			for {
				select {
				case event, ok := <-rt.Events():
					if !ok {
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", time.Now().Format(time.RFC3339), event.Type, string(event.Payload))
				case err := <-rt.Errors():
					return err
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication and circuit breaker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "authenticated: %v\n", client.IsAuthenticated())
			fmt.Fprintf(cmd.OutOrStdout(), "circuit breaker: %s\n", client.CircuitBreakerState())
			return nil
		},
	}
}
