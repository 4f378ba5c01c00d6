// Command incidentctl inspects the incident database, renders pedal traces,
// replays scene recordings and talks to a running cornercased.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cornercase/internal/db"
	"github.com/banshee-data/cornercase/internal/httputil"
	"github.com/banshee-data/cornercase/internal/version"
)

var (
	dbPath    string
	serverURL string

	// client is replaced in tests.
	client httputil.Doer = &http.Client{Timeout: 10 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:           "incidentctl",
	Short:         "Inspect and review corner-case incidents",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "cornercase.db", "incident database path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "cornercased base URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDB opens the database and brings its schema up to date.
func openDB() (*db.DB, error) {
	d, err := db.NewDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return d, nil
}

func endpoint(path string) string {
	return strings.TrimRight(serverURL, "/") + path
}
