// ABOUTME: Interactive config file writer for skybridge init
// ABOUTME: Prompts for each section, writes YAML, and reloads it to validate

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/skybridge/internal/config"
)

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "skybridge configuration setup")
	fmt.Fprintln(out, "=============================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var cfg config.Config

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	cfg.Server.HTTPAddr = prompt(reader, out, "HTTP address", config.DefaultHTTPAddr)
	cfg.Server.BaseURL = strings.TrimRight(prompt(reader, out, "Public base URL", config.DefaultBaseURL), "/")

	fmt.Fprintln(out, "\n--- Google OAuth Client ---")
	cfg.Google.ClientID = prompt(reader, out, "Client ID", "")
	cfg.Google.ClientSecret = prompt(reader, out, "Client secret", "")
	cfg.Google.RedirectURL = prompt(reader, out, "Redirect URL", cfg.Server.BaseURL+"/auth/callback")

	fmt.Fprintln(out, "\n--- Sessions ---")
	key, err := newSigningKey()
	if err != nil {
		return err
	}
	cfg.Auth.SigningKey = prompt(reader, out, "Signing key", key)
	cfg.Auth.SessionTTLRaw = prompt(reader, out, "Session lifetime", config.DefaultSessionTTL.String())

	fmt.Fprintln(out, "\n--- Weather ---")
	cfg.Weather.APIKey = prompt(reader, out, "OpenWeatherMap API key (leave empty to disable)", "")

	fmt.Fprintln(out, "\n--- Audit Log ---")
	defaultAudit := filepath.Join(filepath.Dir(outputFile), "audit.db")
	cfg.Audit.Path = prompt(reader, out, "Audit database path (\"none\" to disable)", defaultAudit)
	if strings.EqualFold(cfg.Audit.Path, "none") {
		cfg.Audit.Path = ""
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	cfg.Logging.Level = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	cfg.Logging.Format = prompt(reader, out, "Log format (text/json)", "text")

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# skybridge configuration\n")
	buf.WriteString("# Generated by skybridge init\n\n")
	buf.Write(body)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file carries the client secret and signing key.
	if err := os.WriteFile(outputFile, []byte(buf.String()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)

	if _, err := config.Load(outputFile); err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
		fmt.Fprintln(out, "Edit the file before starting the server.")
		return nil
	}

	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintf(out, "  SKYBRIDGE_CONFIG=%s skybridge serve\n", outputFile)
	return nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
