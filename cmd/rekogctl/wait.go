package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// waitCmd represents the wait command
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the server and its database are reachable",
	Long: `Poll GET /status until the server answers with a reachable database.

Useful in container entrypoints and CI jobs that must not send uploads before
migrations have finished and the database accepts connections.

Example:
  rekogctl wait
  rekogctl wait --host api.internal --port 8080 --retries 60`,
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		retries, _ := cmd.Flags().GetInt("retries")

		url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/status"
		if err := waitForServer(os.Stdout, url, retries, time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "Server did not become ready: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().String("host", "localhost", "Server host to check")
	waitCmd.Flags().IntP("port", "p", defaultPortInt(), "Server port to check")
	waitCmd.Flags().IntP("retries", "r", 90, "Number of retries")
}

type serverStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// waitForServer polls url until it returns 200 with database "ok". The last
// observed problem is part of the returned error.
func waitForServer(w io.Writer, url string, retries int, interval time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}

	fmt.Fprintf(w, "Waiting for %s ", url)

	var last error
	for i := 0; i < retries; i++ {
		if last = checkStatus(client, url); last == nil {
			fmt.Fprintln(w, "ready")
			return nil
		}
		fmt.Fprint(w, ".")
		time.Sleep(interval)
	}

	fmt.Fprintln(w)
	return fmt.Errorf("not ready after %d attempts: %w", retries, last)
}

func checkStatus(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var status serverStatus
	_ = json.NewDecoder(resp.Body).Decode(&status)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d (database %q)", resp.StatusCode, status.Database)
	}
	if status.Database != "ok" {
		return fmt.Errorf("database %q", status.Database)
	}
	return nil
}
