/*
Package cli is the terminal client of the planning poker core: a cobra command tree
driven either once from the process arguments or line by line from an interactive
prompt, with settings resolved by viper from flags, $HOME/.poker.yaml and the
environment.
*/
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planpoker/internal/app/game"
	"planpoker/internal/app/realtime"
	"planpoker/internal/app/services"
	"planpoker/internal/configs"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/httpx"
	"planpoker/internal/pkg/logx"
)

const (
	apiURLKey  = "api_url"
	hubURLKey  = "hub_url"
	verboseKey = "verbose"

	envPrefix = "POKER"
	prompt    = "poker> "

	commandTimeout = 10 * time.Second
	closeTimeout   = 5 * time.Second
)

// App holds the session shared by every command of one process.
type App struct {
	out    io.Writer
	errOut io.Writer

	v       *viper.Viper
	cfgFile string

	mu      sync.Mutex
	session *game.Session
}

func New(out, errOut io.Writer) *App {
	return &App{
		out:    out,
		errOut: errOut,
		v:      viper.New(),
	}
}

// Main runs the arguments as a first command, then reads commands from in
// until exit or end of input. It returns the process exit code.
func (a *App) Main(ctx context.Context, args []string, in io.Reader) int {
	defer a.Close()

	if len(args) > 0 {
		if err := a.Exec(ctx, args); err != nil {
			a.printErr(err)
			return 1
		}
	}

	if err := a.REPL(ctx, in); err != nil {
		fmt.Fprintf(a.errOut, "error: %v\n", err)
		return 1
	}
	return 0
}

// REPL executes one command per input line until exit, end of input or ctx
// cancellation.
func (a *App) REPL(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(a.out, "entering interactive mode, type 'exit' to quit")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(a.out, prompt)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		args, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintf(a.errOut, "error: %v\n", err)
			continue
		}
		if err := a.Exec(ctx, args); err != nil {
			a.printErr(err)
		}
	}

	select {
	case err := <-scanErr:
		return err
	default:
		return nil
	}
}

// Exec runs one command line against a fresh command tree. The session
// survives between calls.
func (a *App) Exec(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	return root.ExecuteContext(ctx)
}

// Close leaves the room and stops the session's background work.
func (a *App) Close() {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()

	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	s.Close(ctx)
}

// printErr prints err unless the session already surfaced it through the
// notifier.
func (a *App) printErr(err error) {
	if e, ok := errs.As(err); ok && e.Kind != errs.KindValidation {
		return
	}
	fmt.Fprintf(a.errOut, "error: %v\n", err)
}

func (a *App) notify(n errs.Notification) {
	fmt.Fprintf(a.errOut, "! %s\n", n.Message)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "poker",
		Short:         "Planning poker in the terminal",
		Long:          `Create or join a planning poker room, add stories and vote on them with other participants in real time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.ensureSession()
			return err
		},
		// Flags alone only configure the session.
		Run: func(cmd *cobra.Command, args []string) {},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", a.cfgFile, "config file (default is $HOME/.poker.yaml)")
	flags.String("api-url", "", "REST API base URL (default "+configs.DefaultAPIBaseURL+")")
	flags.String("hub-url", "", "hub URL, derived from the API URL when empty")
	flags.BoolP("verbose", "v", false, "log debug output to stderr")

	_ = a.v.BindPFlag(apiURLKey, flags.Lookup("api-url"))
	_ = a.v.BindPFlag(hubURLKey, flags.Lookup("hub-url"))
	_ = a.v.BindPFlag(verboseKey, flags.Lookup("verbose"))

	root.AddCommand(
		a.createCmd(),
		a.joinCmd(),
		a.leaveCmd(),
		a.participantsCmd(),
		a.stateCmd(),
		a.reconnectCmd(),
		a.storyCmd(),
		a.storiesCmd(),
		a.voteCmd(),
		a.revealCmd(),
		a.resetCmd(),
		a.chatCmd(),
	)
	return root
}

// initConfig reads the config file and environment into the viper instance.
func (a *App) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".poker")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// lookup resolves the client's environment variables through viper. Every
// other variable reads as unset so server settings keep their defaults.
func (a *App) lookup(key string) string {
	switch key {
	case "POKER_API_URL":
		return a.v.GetString(apiURLKey)
	case "POKER_HUB_URL":
		return a.v.GetString(hubURLKey)
	default:
		return ""
	}
}

func (a *App) ensureSession() (*game.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return a.session, nil
	}

	if err := a.initConfig(); err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if a.v.GetBool(verboseKey) {
		level = zerolog.DebugLevel
	}
	logx.InitWriterLogger(a.errOut, level)

	cfg, err := configs.LoadConfigFrom(a.lookup)
	if err != nil {
		return nil, err
	}
	if cfg.APIBaseURLDefaulted {
		logx.Warn("POKER_API_URL not set, using default", "api_url", cfg.APIBaseURL)
	}

	a.session = game.NewSession(game.SessionConfig{
		Services: services.New(httpx.NewClient(cfg.APIBaseURL)),
		Dialer:   realtime.NewWSDialer(cfg.HubURL),
		Notifier: errs.NotifierFunc(a.notify),
	})
	logx.Debug("Session ready", "api_url", cfg.APIBaseURL, "hub_url", cfg.HubURL)

	return a.session, nil
}

func (a *App) store() *game.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Store
}

func (a *App) hub() *realtime.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Manager
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, commandTimeout)
}
