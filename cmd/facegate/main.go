// Command facegate drives a facegate device from the shell: one-time
// provisioning, gallery enrollment, probe scans and scan log review.
//
// Configuration comes from facegate.yaml (see internal/config), a .env
// file and the environment. Secrets are environment-only:
//
//	FACEGATE_PRODUCT_KEY  product key the device is bound to
//	FACEGATE_SERVICE_KEY  backend service key
//	FACEGATE_PRIVATE_KEY  device key material (optional, overrides the key file)
//
// Exit codes: 0 success, 1 failure, 2 usage, 3 scan completed with no
// accepted face.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	facegate "github.com/facegate/client-go"
	"github.com/facegate/client-go/internal/config"
)

var (
	errUsage   = errors.New("usage")
	errNoMatch = errors.New("scan accepted no face")
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "facegate:", err)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errNoMatch):
		return 3
	default:
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: facegate [-config file] <command> [args]

Commands:
  provision             generate the device key and publish its public half
  enroll [-force]       sync the local gallery with the enrollment profile
  scan [-source s] img  match the faces in an image file, exit 3 on no match
  log [-verify] [-n N]  print recorded scans, optionally verify the log`)
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("facegate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", defaultConfigPath(), "path to facegate.yaml")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < 1 {
		usage(out)
		return errUsage
	}

	// Load .env if present (won't error if missing).
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: time.Kitchen,
	}))

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "help":
		usage(out)
		return nil
	case "provision", "enroll", "scan", "log":
	default:
		usage(out)
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "provision":
		return runProvision(ctx, client, out)
	case "enroll":
		return runEnroll(ctx, client, out, rest)
	case "scan":
		return runScan(ctx, client, out, rest)
	default:
		return runLog(ctx, client, out, rest)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("FACEGATE_CONFIG"); p != "" {
		return p
	}
	return "facegate.yaml"
}

func buildClient(cfg config.Config, logger *slog.Logger) (*facegate.Client, error) {
	productKey := os.Getenv("FACEGATE_PRODUCT_KEY")
	if productKey == "" {
		return nil, errors.New("FACEGATE_PRODUCT_KEY is not set")
	}

	opts := []facegate.Option{
		facegate.WithDataDir(cfg.DataDir),
		facegate.WithThreshold(cfg.Threshold),
		facegate.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, facegate.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Bucket != "" {
		opts = append(opts, facegate.WithBucket(cfg.Bucket))
	}
	if material := os.Getenv("FACEGATE_PRIVATE_KEY"); material != "" {
		opts = append(opts, facegate.WithPrivateKey(material))
	}
	if cfg.ExtractorURL != "" {
		opts = append(opts, facegate.WithExtractor(facegate.NewHTTPExtractor(cfg.ExtractorURL)))
	}

	return facegate.New(productKey, opts...)
}

func runProvision(ctx context.Context, client *facegate.Client, out io.Writer) error {
	if err := client.Provision(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "device provisioned, key fingerprint %s\n", client.Fingerprint())
	return nil
}

func runEnroll(ctx context.Context, client *facegate.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("enroll", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	force := fs.Bool("force", false, "re-enroll even when the gallery is current")
	concurrency := fs.Int("concurrency", facegate.DefaultEnrollConcurrency, "parallel item downloads")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var opts []facegate.EnrollOption
	if *force {
		opts = append(opts, facegate.WithForce())
	}
	opts = append(opts, facegate.WithConcurrency(*concurrency))

	report, err := client.Enroll(ctx, opts...)
	if err != nil {
		return err
	}
	if report.AlreadyCurrent {
		fmt.Fprintf(out, "gallery already current (%d faces, profile %s)\n",
			report.Enrolled, report.Stamp)
		return nil
	}
	fmt.Fprintf(out, "enrolled %d faces from profile %s\n", report.Enrolled, report.Stamp)
	for _, skipped := range report.Skipped {
		fmt.Fprintf(out, "  skipped item %d (%s): %v\n",
			skipped.Index, skipped.Stage, skipped.Err)
	}
	return nil
}

func runScan(ctx context.Context, client *facegate.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	source := fs.String("source", "", "origin tag for the scan log (default: the file name)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("scan needs exactly one image file: %w", errUsage)
	}

	imagePath := fs.Arg(0)
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	tag := *source
	if tag == "" {
		tag = filepath.Base(imagePath)
	}

	rec, err := client.Scan(ctx, img, tag)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "scan %s: %d face(s) detected\n", rec.ID, rec.FacesDetected)
	for i, res := range rec.Results {
		verdict := "rejected"
		if res.Matched {
			verdict = "accepted"
		}
		label := res.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(out, "  face %d: %s  %-12s similarity %.3f\n", i, verdict, label, res.Similarity)
	}
	if rec.Critical {
		fmt.Fprintln(out, "critical: no face accepted")
		return errNoMatch
	}
	return nil
}

func runLog(ctx context.Context, client *facegate.Client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	verify := fs.Bool("verify", false, "verify the scan log hash chain and signatures")
	tail := fs.Int("n", 0, "print only the last N scans (0 means all)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *verify {
		if err := client.VerifyAuditLog(ctx); err != nil {
			return fmt.Errorf("scan log verification failed: %w", err)
		}
		fmt.Fprintln(out, "scan log verified")
	}

	scans, err := client.ScanLog(ctx)
	if err != nil {
		return err
	}
	if *tail > 0 && len(scans) > *tail {
		scans = scans[len(scans)-*tail:]
	}

	for _, rec := range scans {
		marker := " "
		if rec.Critical {
			marker = "!"
		}
		accepted := 0
		for _, res := range rec.Results {
			if res.Matched {
				accepted++
			}
		}
		fmt.Fprintf(out, "%s %4d  %s  %-16s faces=%d accepted=%d\n",
			marker, rec.Seq, rec.Timestamp, rec.Source, rec.FacesDetected, accepted)
	}
	return nil
}
