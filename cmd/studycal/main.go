package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"studycal/internal/bucket"
	"studycal/internal/config"
	appLog "studycal/internal/log"
	"studycal/internal/store"
	appsync "studycal/internal/sync"
	"studycal/internal/temporal"
	"studycal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	syncOnce   bool
	printTasks bool
	debug      bool
}

func main() {
	flags := parseFlags()

	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("studycal starting", "version", "0.1.0")

	// Credentials may live in a .env file next to the binary.
	_ = godotenv.Load()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"lookahead_days", conf.LookaheadDays,
		"data_dir", conf.DataDir,
	)

	if flags.syncOnce {
		clock, err := temporal.NewClock(conf.Timezone)
		if err != nil {
			appLog.Error("failed to resolve timezone", err, "timezone", conf.Timezone)
			os.Exit(1)
		}
		if err := runSync(conf, clock); err != nil {
			os.Exit(1)
		}
		return
	}

	if flags.printTasks {
		if err := printDashboard(conf); err != nil {
			appLog.Error("failed to print dashboard", err)
			os.Exit(1)
		}
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if conf.Token() == "" {
		appLog.Warn("canvas token env is empty; scheduled syncs will fail until it is set",
			"token_env", conf.Canvas.TokenEnv)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(conf.RefreshCron, func() {
		clock, cerr := temporal.NewClock(conf.Timezone)
		if cerr != nil {
			appLog.Error("scheduled sync: failed to resolve timezone", cerr)
			return
		}
		_ = runSync(conf, clock)
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if err := web.Serve(ctx, conf); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	// Give in-flight cron jobs a moment before exiting.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("studycal exiting")
}

func runSync(conf *config.Config, clock temporal.Clock) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := appsync.Run(ctx, conf, clock)
	if err != nil {
		appLog.Error("sync failed", err)
		return err
	}
	fmt.Printf("Fetched %d courses, %d assignments, added %d new tasks within %d days. "+
		"Cataloged %d documents across %d courses.\n",
		summary.Courses, summary.Assignments, summary.NewTasks, conf.LookaheadDays,
		summary.Documents, summary.DocumentCourses)
	return nil
}

// printDashboard writes the grouped task list to stdout, one section per
// bucket.
func printDashboard(conf *config.Config) error {
	clock, err := temporal.NewClock(conf.Timezone)
	if err != nil {
		return err
	}

	tasks, _, err := store.New(conf.DataDir).Load()
	if err != nil {
		return err
	}
	grouped, err := bucket.GroupTasks(tasks, clock)
	if err != nil {
		return err
	}

	for _, label := range bucket.Buckets {
		fmt.Printf("%s:\n", label)
		views := grouped[label]
		if len(views) == 0 {
			fmt.Print("No tasks.\n\n")
			continue
		}
		for _, view := range views {
			fmt.Printf("- [%s] %s (%s)  [%s]\n", view.Course, view.Title, view.DueDisplay, view.Type)
		}
		fmt.Println()
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.syncOnce, "sync", false, "Run one assignment sync and exit")
	flag.BoolVar(&cfg.printTasks, "print", false, "Print the grouped task dashboard to stdout and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
