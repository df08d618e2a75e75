package main

// BridgeIQ command-line client:
//   go run ./cmd/bridgeiq run ./scans/pano.dcm

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"bridgeiq-client/internal/bridgeiq"
	"bridgeiq-client/internal/ledger"
	"bridgeiq-client/internal/shared/config"
	"bridgeiq-client/internal/shared/metrics"
	"bridgeiq-client/internal/shared/storage/object"
	localstore "bridgeiq-client/internal/shared/storage/object/local"
	s3store "bridgeiq-client/internal/shared/storage/object/s3"
	"bridgeiq-client/internal/shared/telemetry"
	"bridgeiq-client/internal/shared/util"
)

var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	loadConfig   = config.Load
)

const usage = `usage: bridgeiq [-metrics] <command> [flags] [args]

commands:
  health                 check that the service is reachable
  submit <image>         submit an image for analysis
  status <request-id>    show the current analysis status
  wait <request-id>      poll until the analysis finishes
  download <request-id>  download the PDF report
  run <image>            health, submit, wait and download in one go
  history                list submissions recorded on this device`

var errUsage = errors.New(usage)

func main() {
	log.SetFlags(0)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("bridgeiq: %v", err)
	}
}

// app carries what every command needs.
type app struct {
	cfg     config.Config
	client  *bridgeiq.Client
	store   object.Store
	ledger  ledger.Repo
	owner   string
	stdout  io.Writer
	stderr  io.Writer
	options []bridgeiq.Option
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("bridgeiq", flag.ContinueOnError)
	global.SetOutput(stderr)
	showMetrics := global.Bool("metrics", false, "print client metrics after the command")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}
	name, cmdArgs := rest[0], rest[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q\n%w", name, errUsage)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLog, err := setupLogging(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.ClientSecret == "" && stdin != nil && isTerminal(int(stdin.Fd())) {
		fmt.Fprint(stderr, "Client secret: ")
		secret, err := readPassword(int(stdin.Fd()))
		fmt.Fprintln(stderr)
		if err != nil {
			return fmt.Errorf("read client secret: %w", err)
		}
		cfg.ClientSecret = strings.TrimSpace(string(secret))
	}

	a := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	return a.exec(ctx, name, cmd, cmdArgs, *showMetrics)
}

func (a *app) exec(ctx context.Context, name string, cmd command, args []string, showMetrics bool) error {
	store, err := newStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.store = store

	repo, closeLedger := ledger.Open(ctx, a.cfg.DatabaseURL)
	defer closeLedger()
	a.ledger = repo
	a.owner = util.OwnerKey(a.cfg.ClientID, a.cfg.DevicePath)

	opts := append([]bridgeiq.Option{bridgeiq.WithArtifactWriter(store)}, a.options...)
	client, err := bridgeiq.New(a.cfg.ClientConfig(), opts...)
	if err != nil {
		return err
	}
	defer client.Close()
	a.client = client

	telemetry.Debug("cli.command", map[string]any{"command": name, "device": a.cfg.DevicePath})
	err = cmd(ctx, a, args)
	if showMetrics {
		_ = metrics.WriteTo(a.stderr)
	}
	return err
}

func setupLogging(cfg config.Config, stderr io.Writer) (func(), error) {
	telemetry.Configure(telemetry.ParseLevel(cfg.LogLevel), stderr)
	if cfg.LogFile == "" {
		return func() {}, nil
	}
	f, err := telemetry.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	return func() { _ = f.Close() }, nil
}

// newStore picks where downloaded reports are written.
func newStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	if cfg.ObjectStoreType == "s3" {
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("init s3 store: %w", err)
		}
		return store, nil
	}
	return localstore.New(cfg.OutputDir), nil
}
