// Package main is the entry point for the empire-scan tool. It logs in,
// walks the kingdom map outward from a start point until every direction
// hits an empty border, and prints a summary of what it found. With
// Redis configured the scan output is persisted and already covered
// chunks are skipped on the next run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/accounts"
	"github.com/nmxmxh/empire-core/internal/client"
	"github.com/nmxmxh/empire-core/internal/config"
	"github.com/nmxmxh/empire-core/internal/scan"
	"github.com/nmxmxh/empire-core/internal/store"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	"github.com/nmxmxh/empire-core/pkg/logger"
	"github.com/nmxmxh/empire-core/pkg/redis"
)

var (
	kingdom      = flag.Int("kingdom", 0, "kingdom to scan")
	centerX      = flag.Int("x", -1, "map x to scan outward from (defaults to own castle)")
	centerY      = flag.Int("y", -1, "map y to scan outward from (defaults to own castle)")
	chunkRate    = flag.Float64("rate", 0, "chunk requests per second (overrides EMPIRE_SCAN_RATE)")
	maxWaves     = flag.Int("max-waves", 0, "stop after this many waves even without an empty border")
	batchTimeout = flag.Duration("batch-timeout", 0, "wait per wave for chunk responses")
)

func main() {
	flag.Parse()

	log := logger.New(logger.Config{
		Environment: os.Getenv("APP_ENV"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: "empire-scan",
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg, log)
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("Failed to close client", zap.Error(err))
		}
	}()

	persist := newPersistence(cfg, log)
	defer func() {
		if err := persist.Close(); err != nil {
			log.Warn("Failed to close persistence", zap.Error(err))
		}
	}()
	c.SetPersistence(persist)

	if err := c.Login(ctx); err != nil {
		var cooldown *gameerr.LoginCooldownError
		if errors.As(err, &cooldown) {
			log.Fatal("Login rejected by cooldown",
				zap.Int("retry_after_seconds", cooldown.Seconds))
		}
		log.Fatal("Login failed", zap.Error(err))
	}

	center, err := resolveCenter(ctx, c)
	if err != nil {
		log.Fatal("No scan center", zap.Error(err))
	}

	opts := scan.Options{
		Rate:         *chunkRate,
		MaxWaves:     *maxWaves,
		BatchTimeout: *batchTimeout,
		OnProgress: func(wave, chunksScanned, objectsFound int) {
			color.New(color.FgHiCyan).Printf("wave %d: %d chunks scanned, %d objects\n",
				wave, chunksScanned, objectsFound)
		},
	}

	color.New(color.FgHiGreen, color.Bold).Printf("scanning kingdom %d from chunk %s\n", *kingdom, center)
	result, err := c.Scan(ctx, *kingdom, center, opts)
	if err != nil {
		color.New(color.FgHiYellow, color.Bold).Println("scan interrupted, partial results below")
		log.Warn("Scan did not complete", zap.Error(err))
	}
	printSummary(result)
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

func newPersistence(cfg *config.Config, log *zap.Logger) store.Store {
	addr := cfg.RedisAddr()
	if addr == "" {
		return store.NewMemory()
	}
	rc, err := redis.NewClient(redis.Config{
		Host:         cfg.RedisHost,
		Port:         cfg.RedisPort,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}, log)
	if err != nil {
		log.Warn("Redis unavailable, scan results stay in memory", zap.Error(err))
		return store.NewMemory()
	}
	log.Info("Persisting scan output to Redis", zap.String("addr", addr))
	return store.NewRedis(rc, log)
}

// resolveCenter turns the -x/-y flags into chunk coordinates, falling
// back to the first own castle. Castle data arrives shortly after login,
// so the fallback polls briefly.
func resolveCenter(ctx context.Context, c *client.Client) (store.Chunk, error) {
	if *centerX >= 0 && *centerY >= 0 {
		return store.Chunk{X: *centerX / scan.DefaultChunkSize, Y: *centerY / scan.DefaultChunkSize}, nil
	}

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, castle := range c.State().Castles() {
			if castle.KingdomID == *kingdom {
				return store.Chunk{X: castle.X / scan.DefaultChunkSize, Y: castle.Y / scan.DefaultChunkSize}, nil
			}
		}
		select {
		case <-ctx.Done():
			return store.Chunk{}, ctx.Err()
		case <-deadline:
			return store.Chunk{}, fmt.Errorf("no own castle in kingdom %d, pass -x and -y", *kingdom)
		case <-ticker.C:
		}
	}
}

func printSummary(result *scan.Result) {
	if result == nil {
		return
	}

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	appendRow(table, []string{"Kingdom", strconv.Itoa(result.KingdomID)})
	appendRow(table, []string{"Waves", strconv.Itoa(result.Waves)})
	appendRow(table, []string{"Chunks scanned", strconv.Itoa(result.ChunksScanned)})
	appendRow(table, []string{"Chunks skipped", strconv.Itoa(result.ChunksSkipped)})
	appendRow(table, []string{"Objects found", strconv.Itoa(result.ObjectsFound)})
	appendRow(table, []string{"Duration", result.Duration.Round(time.Millisecond).String()})
	if err := table.Render(); err != nil {
		fmt.Printf("failed to render table: %v\n", err)
	}

	owned := 0
	perOwner := map[string]int{}
	alliances := map[string]string{}
	for i := range result.Objects {
		obj := &result.Objects[i]
		if obj.OwnerID <= 0 {
			continue
		}
		owned++
		name := obj.OwnerName
		if name == "" {
			name = fmt.Sprintf("player %d", obj.OwnerID)
		}
		perOwner[name]++
		if obj.AllianceName != "" {
			alliances[name] = obj.AllianceName
		}
	}
	color.New(color.FgHiGreen).Printf("%d player-held areas, %d wild\n", owned, result.ObjectsFound-owned)
	if len(perOwner) == 0 {
		return
	}

	names := make([]string, 0, len(perOwner))
	for name := range perOwner {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if perOwner[names[i]] != perOwner[names[j]] {
			return perOwner[names[i]] > perOwner[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 15 {
		names = names[:15]
	}

	owners := tablewriter.NewWriter(os.Stdout)
	appendRow(owners, []string{"Owner", "Alliance", "Areas"})
	for _, name := range names {
		appendRow(owners, []string{name, alliances[name], strconv.Itoa(perOwner[name])})
	}
	if err := owners.Render(); err != nil {
		fmt.Printf("failed to render table: %v\n", err)
	}
}

func appendRow(table *tablewriter.Table, row []string) {
	if err := table.Append(row); err != nil {
		fmt.Printf("failed to append row: %v\n", err)
	}
}
