package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/reimburse-review/internal/directory"
	"github.com/zombor/reimburse-review/internal/review"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("reimburse-review")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "reimburse-review.db", "Database file path")
		directoryPath = fs.StringLong("directory", "", "YAML user directory (optional; without it every user is a reviewer)")
		jwtSecret     = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens (optional)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		maxRetries    = fs.IntLong("max-retries", review.DefaultMaxRetries, "Retries after a concurrent write conflict")
		_             = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("REIMBURSE_REVIEW"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := review.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var dir review.Directory
	if *directoryPath != "" {
		static, err := directory.Load(*directoryPath)
		if err != nil {
			slog.Error("Failed to load user directory", "error", err)
			os.Exit(1)
		}
		dir = static
	}

	service := review.NewService(db, review.ContextUserProvider{})
	service.SetMaxRetries(*maxRetries)

	auth := review.Auth{
		Basic: review.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		JWTSecret: []byte(*jwtSecret),
	}
	server := review.NewServer(service, auth, dir)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	switch {
	case *jwtSecret != "":
		slog.Info("Bearer token auth enabled")
	case *authUser != "":
		slog.Info("Basic auth enabled", "user", *authUser)
	default:
		if *authPass != "" {
			slog.Warn("Ignoring --auth-pass without --auth-user")
		}
		slog.Warn("No auth configured, trusting the X-User-ID header")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
