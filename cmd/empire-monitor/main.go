// Package main is the entry point for the empire-monitor daemon.
// It keeps a session to the game server open, raises colored alerts for
// incoming attacks and alliance chat, and prints a castle status table
// on an interval.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nmxmxh/empire-core/internal/accounts"
	"github.com/nmxmxh/empire-core/internal/client"
	"github.com/nmxmxh/empire-core/internal/config"
	"github.com/nmxmxh/empire-core/internal/request"
	"github.com/nmxmxh/empire-core/internal/sched"
	"github.com/nmxmxh/empire-core/internal/state"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	"github.com/nmxmxh/empire-core/pkg/logger"
	"github.com/nmxmxh/empire-core/pkg/metrics"
)

var (
	statusInterval = flag.Duration("status-interval", time.Minute, "interval between castle status tables")
	pollInterval   = flag.Duration("poll-interval", 30*time.Second, "interval between movement refreshes")
	helpSweep      = flag.Bool("help-all", false, "answer open alliance help requests every five minutes")
)

func main() {
	flag.Parse()

	log := logger.New(logger.Config{
		Environment: os.Getenv("APP_ENV"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: "empire-monitor",
	})
	defer func() {
		if err := log.Sync(); err != nil {
			log.Warn("Failed to sync logger", zap.Error(err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	applyAccount(cfg, log)
	if cfg.Username == "" || cfg.Password == "" {
		log.Fatal("No credentials configured; set EMPIRE_USERNAME and EMPIRE_PASSWORD or EMPIRE_ACCOUNTS_FILE")
	}

	// Create context that listens for the interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg, log)
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("Failed to close client", zap.Error(err))
		}
	}()

	registerAlerts(c, log)

	if err := c.Login(ctx); err != nil {
		var cooldown *gameerr.LoginCooldownError
		if errors.As(err, &cooldown) {
			log.Fatal("Login rejected by cooldown",
				zap.Int("retry_after_seconds", cooldown.Seconds))
		}
		log.Fatal("Login failed", zap.Error(err))
	}
	if p := c.State().Player(); p != nil {
		color.New(color.FgHiGreen, color.Bold).Printf("logged in as %s (level %d)\n", p.Name, p.Level)
	} else {
		color.New(color.FgHiGreen, color.Bold).Println("logged in")
	}

	if cfg.AutoReconnect {
		c.StartReconnect(ctx)
	}

	if cfg.AccountsFile != "" {
		watcher, err := accounts.NewWatcher(log, cfg.AccountsFile, func(list []accounts.Account) {
			log.Info("Accounts file reloaded; new credentials apply on next restart",
				zap.Int("accounts", len(list)))
		})
		if err != nil {
			log.Warn("Accounts watcher unavailable", zap.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			log.Warn("Accounts watcher failed to start", zap.Error(err))
		} else {
			defer func() {
				if err := watcher.Stop(); err != nil {
					log.Warn("Failed to stop accounts watcher", zap.Error(err))
				}
			}()
		}
	}

	runner := sched.New(log)
	err = runner.Add("movements", *pollInterval, func() {
		taskCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.RefreshMovements(taskCtx); err != nil {
			log.Warn("Movement refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("Failed to schedule movement refresh", zap.Error(err))
	}
	if *helpSweep {
		err = runner.Add("alliance-help", 5*time.Minute, func() {
			taskCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := c.Alliance.HelpAll(taskCtx); err != nil {
				log.Warn("Alliance help sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("Failed to schedule alliance help sweep", zap.Error(err))
		}
	}
	runner.Start()
	defer runner.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		g.Go(func() error {
			log.Info("Starting metrics server", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		statusLoop(gctx, c)
		return nil
	})

	log.Info("Monitor running",
		zap.Duration("status_interval", *statusInterval),
		zap.Duration("poll_interval", *pollInterval))

	if err := g.Wait(); err != nil {
		log.Error("Monitor exited with error", zap.Error(err))
	}
	log.Info("Monitor stopped")
}

// applyAccount fills missing credentials from the accounts file. Env
// credentials win so one account can be overridden without editing the
// file.
func applyAccount(cfg *config.Config, log *zap.Logger) {
	if cfg.AccountsFile == "" || cfg.Username != "" {
		return
	}
	acct, err := accounts.First(cfg.AccountsFile)
	if err != nil {
		log.Fatal("Failed to load accounts file",
			zap.String("path", cfg.AccountsFile),
			zap.Error(err))
	}
	cfg.Username = acct.Username
	cfg.Password = acct.Password
	if acct.ServerURL != "" {
		cfg.ServerURL = acct.ServerURL
	}
	if acct.Zone != "" {
		cfg.Zone = acct.Zone
	}
}

func registerAlerts(c *client.Client, log *zap.Logger) {
	c.OnIncomingAttack(func(m *state.Movement) {
		color.New(color.FgHiRed, color.Bold).Printf("incoming %s from %s -> %s, arrives in %s\n",
			movementKind(m), attackerName(m), targetName(m), m.TimeRemaining().Round(time.Second))
		log.Warn("Incoming attack",
			zap.Int("movement_id", m.ID),
			zap.String("from", attackerName(m)),
			zap.String("target", targetName(m)),
			zap.Duration("eta", m.TimeRemaining()))
	})
	c.OnMovementRecalled(func(m *state.Movement) {
		color.New(color.FgHiYellow).Printf("movement %d from %s recalled\n", m.ID, attackerName(m))
		log.Info("Movement recalled", zap.Int("movement_id", m.ID))
	})
	c.Alliance.OnMessage(func(msg request.ChatMessage) {
		color.New(color.FgHiCyan).Printf("[alliance] %s: %s\n", msg.Name, msg.Text)
	})
}

func statusLoop(ctx context.Context, c *client.Client) {
	ticker := time.NewTicker(*statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStatus(c)
		}
	}
}

func printStatus(c *client.Client) {
	p := c.State().Player()
	if p == nil {
		return
	}
	color.New(color.FgHiCyan, color.Bold).Printf("\n%s  level %d  gold %d  rubies %d\n",
		p.Name, p.Level, p.Gold, p.Rubies)

	castles := c.State().Castles()
	if len(castles) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		appendRow(table, []string{"Castle", "Area", "Coords", "Wood", "Stone", "Food"})
		for _, castle := range castles {
			appendRow(table, []string{
				castle.Name,
				strconv.Itoa(castle.AreaID),
				fmt.Sprintf("%d:%d", castle.X, castle.Y),
				formatStock(castle.Resources.Wood, castle.Resources.WoodCap),
				formatStock(castle.Resources.Stone, castle.Resources.StoneCap),
				formatStock(castle.Resources.Food, castle.Resources.FoodCap),
			})
		}
		if err := table.Render(); err != nil {
			fmt.Printf("failed to render table: %v\n", err)
		}
	}

	incoming := c.State().IncomingAttacks()
	if len(incoming) == 0 {
		return
	}
	color.New(color.FgHiRed, color.Bold).Printf("%d hostile movement(s) underway\n", len(incoming))
	table := tablewriter.NewWriter(os.Stdout)
	appendRow(table, []string{"ID", "Kind", "From", "Target", "ETA"})
	for _, m := range incoming {
		appendRow(table, []string{
			strconv.Itoa(m.ID),
			movementKind(m),
			attackerName(m),
			targetName(m),
			m.TimeRemaining().Round(time.Second).String(),
		})
	}
	if err := table.Render(); err != nil {
		fmt.Printf("failed to render table: %v\n", err)
	}
}

func appendRow(table *tablewriter.Table, row []string) {
	if err := table.Append(row); err != nil {
		fmt.Printf("failed to append row: %v\n", err)
	}
}

func formatStock(have float64, limit int) string {
	return fmt.Sprintf("%.0f/%d", have, limit)
}

func movementKind(m *state.Movement) string {
	switch m.Type {
	case state.MovementTypeAttack:
		return "attack"
	case state.MovementTypeSpy:
		return "spy run"
	case state.MovementTypeSupport:
		return "support"
	case state.MovementTypeTransport:
		return "transport"
	default:
		return "movement"
	}
}

func attackerName(m *state.Movement) string {
	if m.SourcePlayerName != "" {
		return m.SourcePlayerName
	}
	if m.SourceName != "" {
		return m.SourceName
	}
	return fmt.Sprintf("area %d", m.SourceAreaID)
}

func targetName(m *state.Movement) string {
	if m.TargetName != "" {
		return m.TargetName
	}
	return fmt.Sprintf("area %d", m.TargetAreaID)
}
