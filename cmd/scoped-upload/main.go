package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
	"github.com/tendant/scoped-upload/pkg/scopedupload/config"
	"github.com/tendant/scoped-upload/pkg/scopedupload/ledger"
	"github.com/tendant/scoped-upload/pkg/scopedupload/ledger/postgres"
	"github.com/tendant/scoped-upload/pkg/scopedupload/source"
)

// S3Config is read from the environment when -s3-bucket is given.
type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-description:"Custom endpoint for S3-compatible services"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
}

// errReported marks a batch failure whose message was already printed.
var errReported = errors.New("batch failed")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		if !errors.Is(err, errReported) {
			slog.Error("scoped-upload failed", "err", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("scoped-upload", flag.ContinueOnError)
	var (
		configFile = fs.String("config", "", "YAML or JSON config file")
		dir        = fs.String("dir", "", "Upload every file under this directory")
		exts       = fs.String("ext", "", "Comma separated extensions to include with -dir, e.g. .png,.jpg")
		manifest   = fs.String("manifest", "", "Upload entries of a JSON manifest")
		bucket     = fs.String("s3-bucket", "", "Upload objects from this S3 bucket")
		prefix     = fs.String("s3-prefix", "", "Key prefix within -s3-bucket")
		ledgerDSN  = fs.String("ledger-dsn", "", "Record item outcomes in this Postgres database")
		lang       = fs.String("lang", "", "Language for error messages (overrides SCOPED_UPLOAD_LANGUAGE)")
		verbose    = fs.Bool("v", false, "Debug logging")
	)
	fs.Usage = cleanenv.FUsage(fs.Output(), &config.Config{}, nil, fs.Usage)
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []config.Option{config.WithFile(*configFile), config.WithEnv()}
	if *lang != "" {
		opts = append(opts, config.WithLanguage(*lang))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sources, err := buildSources(ctx, *dir, *exts, *manifest, *bucket, *prefix)
	if err != nil {
		return fmt.Errorf("failed to configure sources: %w", err)
	}
	items, err := source.Collect(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to collect items: %w", err)
	}

	batchID := uuid.New()
	uploaderOpts := []scopedupload.Option{scopedupload.WithLogger(logger)}

	if *ledgerDSN != "" {
		pool, err := pgxpool.New(ctx, *ledgerDSN)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		rec := postgres.NewWithPool(pool)
		if err := rec.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare ledger: %w", err)
		}
		uploaderOpts = append(uploaderOpts, scopedupload.WithHooks(ledger.Hooks(rec, batchID)))
	}

	uploader, err := cfg.BuildUploader(uploaderOpts...)
	if err != nil {
		return fmt.Errorf("failed to create uploader: %w", err)
	}

	slog.Info("Uploading batch", "batch_id", batchID.String(), "items", len(items), "endpoint", uploader.Config().Endpoint)
	results, err := uploader.UploadAll(ctx, items)

	for _, r := range results {
		if r.Status == scopedupload.ItemUploaded {
			fmt.Printf("%s\t%s\n", r.FileName, r.RetrievalURL)
		}
	}

	if err != nil {
		// Error() is the user-facing message; the uploader already logged the cause.
		fmt.Fprintln(os.Stderr, err.Error())
		return errReported
	}
	return nil
}

func buildSources(ctx context.Context, dir, exts, manifest, bucket, prefix string) ([]source.Source, error) {
	var sources []source.Source

	if dir != "" {
		d := source.Dir{Root: dir}
		for _, ext := range strings.Split(exts, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				if !strings.HasPrefix(ext, ".") {
					ext = "." + ext
				}
				d.Extensions = append(d.Extensions, ext)
			}
		}
		sources = append(sources, d)
	}

	if manifest != "" {
		sources = append(sources, source.Manifest{Path: manifest})
	}

	if bucket != "" {
		var s3cfg S3Config
		if err := cleanenv.ReadEnv(&s3cfg); err != nil {
			return nil, fmt.Errorf("failed to read S3 environment: %w", err)
		}
		src, err := source.NewS3(ctx, source.S3Config{
			Region:          s3cfg.Region,
			Bucket:          bucket,
			Prefix:          prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Endpoint:        s3cfg.Endpoint,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("one of -dir, -manifest or -s3-bucket is required")
	}
	return sources, nil
}
