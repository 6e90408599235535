package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/damon-houk/kantor-sync/internal/application/service"
	"github.com/damon-houk/kantor-sync/internal/config"
	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/auth"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

// RootConfig holds the values shared by every command
type RootConfig struct {
	ConfigPath string
	Token      string
	BackendURL string
	LogLevel   string
	Timeout    time.Duration

	cfg *config.Config
	log logger.Logger
}

// NewRootCommand builds the kantor command tree
func NewRootCommand() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:           "kantor",
		Short:         "Multi-currency portfolio client for the kantor exchange ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rc.load(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&rc.ConfigPath, "config", os.Getenv("KANTOR_CONFIG"), "path to a YAML config file")
	flags.StringVar(&rc.Token, "token", "", "bearer token (overrides KANTOR_TOKEN)")
	flags.StringVar(&rc.BackendURL, "backend", "", "ledger base URL (overrides KANTOR_BACKEND_URL)")
	flags.StringVar(&rc.LogLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	flags.DurationVar(&rc.Timeout, "wait", 30*time.Second, "overall time limit of a command")

	cmd.AddCommand(
		newPortfolioCmd(rc),
		newSeriesCmd(rc),
		newArchiveCmd(rc),
		newHistoryCmd(rc),
		newDepositCmd(rc),
		newExchangeCmd(rc, entity.KindBuy),
		newExchangeCmd(rc, entity.KindSell),
		newTokenCmd(rc),
	)

	return cmd
}

func (rc *RootConfig) load(stderr io.Writer) error {
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return err
	}
	if rc.Token != "" {
		cfg.Ledger.Token = rc.Token
	}
	if rc.BackendURL != "" {
		cfg.Ledger.BaseURL = rc.BackendURL
	}
	if rc.LogLevel != "" {
		cfg.LogLevel = rc.LogLevel
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if rc.LogLevel == "" && os.Getenv("KANTOR_LOG_LEVEL") == "" {
		level = logger.WarnLevel
	}

	rc.cfg = cfg
	rc.log = logger.NewZapLogger(stderr, level)
	return nil
}

// session signs in and runs fn against the synchronised engine
func (rc *RootConfig) session(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), rc.Timeout)
	defer cancel()

	app := NewApp(rc.cfg, rc.log, prometheus.NewRegistry())
	defer app.Close()

	state, err := app.SignIn(ctx, rc.cfg.Ledger.Token)
	if err != nil {
		return fmt.Errorf("sync failed: %s", entity.UserMessage(err))
	}
	if state.Stale {
		rc.log.Warn("Using default rates", nil)
	}

	return fn(ctx, app)
}

func (rc *RootConfig) base() entity.Currency {
	return rc.cfg.Portfolio.Base()
}

func newPortfolioCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the portfolio composition in the base currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.session(cmd, func(ctx context.Context, app *App) error {
				snap, err := app.Snapshot(ctx)
				if err != nil {
					return err
				}
				return renderPortfolio(cmd.OutOrStdout(), snap, rc.base())
			})
		},
	}
}

func newSeriesCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "series [CURRENCY...]",
		Short: "Show the recent rate series of foreign currencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			currencies := entity.ForeignCurrencies(rc.base())
			if len(args) > 0 {
				currencies = currencies[:0]
				for _, code := range args {
					cur, err := entity.ParseCurrency(code)
					if err != nil {
						return err
					}
					currencies = append(currencies, cur)
				}
			}

			return rc.session(cmd, func(ctx context.Context, app *App) error {
				snap, err := app.Snapshot(ctx)
				if err != nil {
					return err
				}
				return renderSeries(cmd.OutOrStdout(), snap, currencies)
			})
		},
	}
}

func newArchiveCmd(rc *RootConfig) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List archived daily rates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.session(cmd, func(ctx context.Context, app *App) error {
				snap, err := app.Snapshot(ctx)
				if err != nil {
					return err
				}
				return renderArchive(cmd.OutOrStdout(), snap.Archive, rc.base(), days)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "show at most this many days")
	return cmd
}

func newHistoryCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List settled transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.session(cmd, func(ctx context.Context, app *App) error {
				snap, err := app.Snapshot(ctx)
				if err != nil {
					return err
				}
				return renderHistory(cmd.OutOrStdout(), snap.Transactions, rc.base())
			})
		},
	}
}

func newDepositCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit AMOUNT",
		Short: "Deposit base currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return rc.submit(cmd, entity.KindDeposit, rc.base(), amount)
		},
	}
}

func newExchangeCmd(rc *RootConfig, kind entity.TransactionKind) *cobra.Command {
	short := "Buy a foreign currency at the current rate"
	if kind == entity.KindSell {
		short = "Sell a foreign currency at the current rate"
	}

	return &cobra.Command{
		Use:   string(kind) + " CURRENCY AMOUNT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cur, err := entity.ParseCurrency(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return rc.submit(cmd, kind, cur, amount)
		},
	}
}

// submit runs one intent through the executor and prints the resynced balance
func (rc *RootConfig) submit(cmd *cobra.Command, kind entity.TransactionKind, cur entity.Currency, amount float64) error {
	return rc.session(cmd, func(ctx context.Context, app *App) error {
		out, err := app.Executor().Submit(ctx, kind, cur, amount)
		if err != nil {
			return fmt.Errorf("%s rejected: %s", kind, entity.UserMessage(err))
		}
		if out.State != service.StateSettled {
			return fmt.Errorf("%s ended in state %s", kind, out.State)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s of %s settled.\n", kind, cur.Format(out.Intent.Amount))

		if snap, err := app.Snapshot(ctx); err == nil {
			renderBalance(w, snap.Balance, rc.base())
		}
		return nil
	})
}

func newTokenCmd(rc *RootConfig) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue a bearer token signed with the sandbox secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.Issue(rc.cfg.Sandbox.Secret, args[0], email, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 never expires")
	return cmd
}

func parseAmount(s string) (float64, error) {
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}
