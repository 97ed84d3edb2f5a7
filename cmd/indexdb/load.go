package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	loadServer string
	loadStore  string
	loadCount  int
	loadBatch  int
	loadSeed   int64

	loadCmd = &cobra.Command{
		Use:   "load",
		Short: "Insert random users into a running server",
		Long: `load declares a store with name, age and email indexes on a running
server and inserts randomly generated users, reporting throughput.`,
		Example: `  indexdb load --count 1000
  indexdb load --count 50000 --batch 500 --server http://localhost:9090`,
		RunE: runLoad,
	}
)

func init() {
	loadCmd.Flags().StringVar(&loadServer, "server", "http://localhost:8080", "Server base URL")
	loadCmd.Flags().StringVar(&loadStore, "store", "users", "Store to insert into")
	loadCmd.Flags().IntVar(&loadCount, "count", 1000, "Number of users to insert")
	loadCmd.Flags().IntVar(&loadBatch, "batch", 1, "Users per request (1 uses single inserts)")
	loadCmd.Flags().Int64Var(&loadSeed, "seed", 0, "Random seed (0 uses the clock)")
	rootCmd.AddCommand(loadCmd)
}

// user represents the structure of a user document to insert
type user struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Email string `json:"email"`
}

// randomUser generates a user with a random 6-letter name and an age
// between 18 and 99
func randomUser(rng *rand.Rand) user {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := make([]byte, 6)
	for i := range name {
		name[i] = letters[rng.Intn(len(letters))]
	}
	// Capitalize first letter
	name[0] = name[0] - 32
	return user{
		Name:  string(name),
		Age:   rng.Intn(82) + 18,
		Email: strings.ToLower(string(name)) + "@example.com",
	}
}

// loadClient talks to the document API
type loadClient struct {
	http    *http.Client
	baseURL string
	store   string
}

func (c *loadClient) send(method, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

func (c *loadClient) declare() error {
	return c.send("PUT", "/stores/"+c.store, map[string]interface{}{
		"indexes": []map[string]string{
			{"name": "name", "field": "name", "kind": "search"},
			{"name": "age", "field": "age"},
			{"name": "email", "field": "email"},
		},
	})
}

func (c *loadClient) insert(users []user) error {
	if len(users) == 1 {
		return c.send("POST", "/stores/"+c.store+"/documents", users[0])
	}
	return c.send("POST", "/stores/"+c.store+"/batch", map[string]interface{}{"documents": users})
}

func runLoad(cmd *cobra.Command, _ []string) error {
	if loadCount <= 0 {
		return fmt.Errorf("--count must be greater than 0")
	}
	if loadBatch <= 0 || loadBatch > 1000 {
		return fmt.Errorf("--batch must be between 1 and 1000")
	}
	seed := loadSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	out := cmd.OutOrStdout()

	client := &loadClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(loadServer, "/"),
		store:   loadStore,
	}
	if err := client.declare(); err != nil {
		return fmt.Errorf("failed to declare store %s: %w", loadStore, err)
	}

	fmt.Fprintf(out, "Starting load test: inserting %d users into %s at %s\n", loadCount, loadStore, loadServer)

	startTime := time.Now()
	successCount := 0
	errorCount := 0
	reportInterval := max(1, loadCount/10) // Report every 10%
	nextReport := reportInterval

	for done := 0; done < loadCount; {
		n := min(loadBatch, loadCount-done)
		users := make([]user, n)
		for i := range users {
			users[i] = randomUser(rng)
		}

		if err := client.insert(users); err != nil {
			errorCount += n
			fmt.Fprintf(out, "Error inserting users %d-%d: %v\n", done+1, done+n, err)
		} else {
			successCount += n
		}
		done += n

		if done >= nextReport || done == loadCount {
			rate := float64(done) / time.Since(startTime).Seconds()
			fmt.Fprintf(out, "Progress: %d/%d users (%.1f%%) - Rate: %.1f users/sec - Success: %d, Errors: %d\n",
				done, loadCount, float64(done)/float64(loadCount)*100, rate, successCount, errorCount)
			nextReport = done + reportInterval
		}
	}

	totalTime := time.Since(startTime)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Successful inserts:    %d\n", successCount)
	fmt.Fprintf(out, "Failed inserts:        %d\n", errorCount)
	fmt.Fprintf(out, "Total time:            %v\n", totalTime)
	fmt.Fprintf(out, "Average rate:          %.2f users/sec\n", float64(loadCount)/totalTime.Seconds())

	if errorCount > 0 {
		return fmt.Errorf("%d of %d inserts failed", errorCount, loadCount)
	}
	return nil
}
