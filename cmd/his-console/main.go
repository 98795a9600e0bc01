package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/his/his/internal/config"
	"github.com/his/his/internal/console/client"
	"github.com/his/his/internal/console/nav"
	"github.com/his/his/internal/console/session"
	"github.com/his/his/internal/console/workspace"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

const (
	exitOK         = 0
	exitError      = 1
	exitRedirected = 2
)

var errNotLoggedIn = errors.New("not logged in; run his-console login first")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	printError(stderr, err)
	if errors.Is(err, nav.ErrRedirected) || errors.Is(err, nav.ErrNoAccess) {
		return exitRedirected
	}
	return exitError
}

// app wires the console components once per process. The session store is
// the only holder of identity; everything else receives it.
type app struct {
	logger zerolog.Logger
	client *client.Client
	store  *session.Store
	nav    *nav.Navigator
	ws     *workspace.Workspace
	out    io.Writer
}

func newApp(cfg *config.Console, out, errOut io.Writer) *app {
	logger := newLogger(cfg.LogLevel, errOut)

	var store *session.Store
	c := client.New(client.Config{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	}, client.TokenFunc(func() string { return store.Token() }))
	store = session.NewStore(c, session.NewFilePersister(cfg.SessionFile), logger)
	c.OnUnauthorized(store.Invalidate)

	a := &app{
		logger: logger,
		client: c,
		store:  store,
		nav:    nav.New(store),
		ws:     workspace.New(c, store, logger),
		out:    out,
	}
	store.Restore()
	return a
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger()
}

func (a *app) requireSession() error {
	if a.store.State() != session.Authenticated {
		return errNotLoggedIn
	}
	return nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var a *app
	root := &cobra.Command{
		Use:           "his-console",
		Short:         "HIS administrative console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConsole()
			if err != nil {
				return err
			}
			a = newApp(cfg, stdout, stderr)
			return nil
		},
	}
	appFn := func() *app { return a }

	root.AddCommand(
		loginCmd(appFn),
		logoutCmd(appFn),
		whoamiCmd(appFn),
		modulesCmd(appFn),
		openCmd(appFn),
		listCmd(appFn),
		showCmd(appFn),
		createCmd(appFn),
		updateCmd(appFn),
		deleteCmd(appFn),
	)
	return root
}

func loginCmd(appFn func() *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()
			if a.store.State() == session.Authenticated {
				if err := a.store.Logout(ctx); err != nil {
					a.logger.Warn().Err(err).Msg("clear previous session")
				}
			}
			if err := a.store.Login(ctx, username, password); err != nil {
				return err
			}
			u, _ := a.store.User()
			fmt.Fprintf(a.out, "Logged in as %s (%s).\n", u.Name, u.Role.Label())
			printMenu(a.out, a.nav.Menu(), a.nav.Active())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear local data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func whoamiCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user as the server sees it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.requireSession(); err != nil {
				return err
			}
			prev := a.store.Role()
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.store.UpdateUser(*u); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s <%s>\nrole: %s\n", u.Name, u.Email, u.Role.Label())
			if prev != u.Role {
				fmt.Fprintf(a.out, "Your role changed from %s to %s.\n", prev.Label(), u.Role.Label())
			}
			return nil
		},
	}
}

func modulesCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules available to your role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.requireSession(); err != nil {
				return err
			}
			menu := a.nav.Menu()
			if len(menu) == 0 {
				return nav.ErrNoAccess
			}
			printMenu(a.out, menu, a.nav.Active())
			return nil
		},
	}
}

func openCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <module>",
		Short: "Open a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.requireSession(); err != nil {
				return err
			}
			id, err := a.nav.Open(access.ModuleID(args[0]))
			if errors.Is(err, nav.ErrNoAccess) {
				return err
			}
			if showErr := a.showModule(cmd.Context(), id); showErr != nil {
				return showErr
			}
			return err
		},
	}
}

func (a *app) showModule(ctx context.Context, id access.ModuleID) error {
	m, _ := access.LookupModule(id)
	fmt.Fprintf(a.out, "== %s ==\n", m.Label)
	if id == access.ModuleDashboard {
		sum, err := a.client.Dashboard(ctx)
		if err != nil {
			return err
		}
		for _, ref := range sum.Modules {
			for _, r := range access.ResourcesIn(ref.ID) {
				if n, ok := sum.Counts[r]; ok {
					fmt.Fprintf(a.out, "%-20s %d\n", r, n)
				}
			}
		}
		return nil
	}
	for _, r := range access.ResourcesIn(id) {
		fmt.Fprintf(a.out, "  %s\n", r)
	}
	return nil
}

func printMenu(w io.Writer, menu []access.Module, active access.ModuleID) {
	for _, m := range menu {
		marker := " "
		if m.ID == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-16s %s\n", marker, m.ID, m.Label)
	}
}

// printError lists field problems one per line when the error carries them.
func printError(w io.Writer, err error) {
	var fields []hisapi.FieldError
	var cerr *client.Error
	var verr *hisapi.ValidationError
	switch {
	case errors.As(err, &cerr):
		fields = cerr.Fields
	case errors.As(err, &verr):
		fields = verr.Fields
	}
	if len(fields) == 0 {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	fmt.Fprintln(w, "Error: validation failed")
	for _, f := range fields {
		fmt.Fprintf(w, "  %s %s\n", f.Field, f.Problem)
	}
}
