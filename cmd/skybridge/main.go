// ABOUTME: Entry point for skybridge, the MCP gateway with a Google OAuth bridge
// ABOUTME: Provides serve, init, health, keygen, audit, and version commands

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/skybridge/internal/config"
	"github.com/2389/skybridge/internal/gateway"
	"github.com/2389/skybridge/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _          _          _     _
   ___| | ___   _| |__  _ __(_) __| | __ _  ___
  / __| |/ / | | | '_ \| '__| |/ _' |/ _' |/ _ \
  \__ \   <| |_| | |_) | |  | | (_| | (_| |  __/
  |___/_|\_\\__, |_.__/|_|  |_|\__,_|\__, |\___|
            |___/                    |___/
`

func usage() {
	fmt.Println("Usage: skybridge <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Start the gateway server")
	fmt.Println("  init             Create a new config file interactively")
	fmt.Println("  health           Check gateway health")
	fmt.Println("  keygen           Print a random session signing key")
	fmt.Println("  audit [-n N]     Show recent tool calls from the audit log")
	fmt.Println("  version          Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "keygen":
		err = runKeygen(os.Stdout)
	case "audit":
		err = runAudit(ctx, os.Args[2:], os.Stdout)
	case "version", "--version", "-v":
		fmt.Println(version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, then the config file if one exists, else the environment alone.
func loadConfig() (*config.Config, string, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}

	path := config.DefaultPath()
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || os.Getenv("SKYBRIDGE_CONFIG") != "" {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return nil, "", fmt.Errorf("loading config from environment: %w", err)
		}
		return cfg, "(environment)", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, source, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Public:    ")
	cyan.Println(cfg.Server.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Sign in:   %s/auth/start\n", cfg.Server.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Audit:     ")
	if cfg.Audit.Path != "" {
		fmt.Println(cfg.Audit.Path)
	} else {
		gray.Println("disabled")
	}
	if cfg.Auth.SigningKey == "" {
		yellow.Println("    ! no signing key configured; sessions end when the process exits")
	}
	if cfg.Weather.APIKey == "" {
		yellow.Println("    ! no weather api key configured")
	}
	fmt.Println()

	logger.Info("starting skybridge",
		"config", source,
		"http_addr", cfg.Server.HTTPAddr,
		"base_url", cfg.Server.BaseURL,
	)

	gw, err := gateway.New(cfg, logger, gateway.WithVersion(version))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// healthURL maps the listen address onto a URL a local client can reach.
func healthURL(httpAddr string) string {
	if strings.HasPrefix(httpAddr, ":") {
		httpAddr = "localhost" + httpAddr
	}
	return fmt.Sprintf("http://%s/healthz", httpAddr)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg.Server.HTTPAddr), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return fmt.Errorf("reading health response: %w", err)
	}

	fmt.Println(body.Status)
	return nil
}

// newSigningKey returns a random key long enough for auth.signing_key.
func newSigningKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating signing key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func runKeygen(w io.Writer) error {
	key, err := newSigningKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, key)
	return err
}

func runAudit(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	limit := fs.Int("n", 20, "number of calls to show")
	subject := fs.String("subject", "", "only calls by this provider subject")
	tool := fs.String("tool", "", "only calls to this tool")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.Path == "" {
		return errors.New("audit.path is not configured")
	}

	s, err := store.NewSQLiteStore(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	calls, err := s.ListToolCalls(ctx, store.ToolCallFilter{Subject: *subject, ToolName: *tool, Limit: *limit})
	if err != nil {
		return err
	}
	return printToolCalls(w, calls)
}

func printToolCalls(w io.Writer, calls []store.ToolCall) error {
	if len(calls) == 0 {
		_, err := fmt.Fprintln(w, "no tool calls recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSUBJECT\tTOOL\tTRANSPORT\tDURATION\tOUTCOME")
	for _, c := range calls {
		outcome := string(c.Outcome)
		if c.Outcome == store.OutcomeError {
			outcome = fmt.Sprintf("error %d: %s", c.ErrorCode, c.ErrorMessage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime),
			c.Subject,
			c.ToolName,
			c.Transport,
			c.Duration,
			outcome,
		)
	}
	return tw.Flush()
}
