package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(a *app) *cobra.Command {
	var server, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify and store the server URL and personal access token",
		Long: "Verify the server URL and personal access token against the server and store them " +
			"for later commands. Logging in to a different server clears the local cache.\n\n" +
			"Without --token the token is read from the terminal without echo, or from stdin.",
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			stack, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if server == "" {
				server = a.env.Config.FireflyURL
			}
			if server == "" {
				return errors.New("--server is required")
			}
			if token == "" {
				token, err = readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}

			user, err := stack.Sessions.Login(cmd.Context(), server, token)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n",
				strings.TrimRight(server, "/"), user.Attributes.Email)
			return nil
		}),
	}

	cmd.Flags().StringVar(&server, "server", "", "Firefly III base URL, e.g. https://firefly.example.com")
	cmd.Flags().StringVar(&token, "token", "", "personal access token")
	return cmd
}

// readToken prompts for the token without echo on a terminal, otherwise it
// reads the first line of in.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials and clear the local cache",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			stack, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := stack.Sessions.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out, local cache cleared")
			return nil
		}),
	}
}
