// Package cli implements the spendguard command-line interface.
// `spendguard serve` runs the daemon; the other commands talk to a
// running daemon over its admin HTTP API.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendguard/spendguard/internal/daemon"
)

var (
	configPath string
	apiAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "spendguard",
	Short: "Spend-policy engine for wallet checkouts",
	Long: `Spendguard gates wallet payments behind a spend policy: rolling
daily/monthly limits, permission requests with auto-approval, and an
auto-spend arbiter for sub-account funding. Run 'spendguard serve' to
start the daemon, then use the other commands to inspect and operate it.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config.toml (default ~/.spendguard/config.toml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "",
		"daemon API address (default from config)")
}

// ─── HTTP Client Helpers ────────────────────────────────────────────────────

var httpClient = &http.Client{Timeout: 10 * time.Second}

// baseURL resolves the daemon address from --addr or config.
func baseURL() (string, error) {
	if apiAddr != "" {
		return "http://" + apiAddr, nil
	}
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.API.Addr(), nil
}

// getJSON performs a GET and decodes the JSON response into out.
func getJSON(path string, out interface{}) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	resp, err := httpClient.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// postJSON performs a POST with a JSON body and decodes the response.
func postJSON(path string, body, out interface{}) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(base+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// printJSON pretty-prints a decoded JSON value.
func printJSON(v interface{}) {
	raw, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(os.Stdout, string(raw))
}
