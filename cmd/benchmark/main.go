// Benchmark tool for measuring Kestrel against labelled application data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/applications.csv -url http://localhost:8080
//
// The CSV header must name the columns ssn, name, dob and is_synthetic;
// address, phone, email and device are optional. Each row is posted to
// /score and the returned risk level is compared with the label.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// LabelledApplication is one CSV row.
type LabelledApplication struct {
	Request     api.ApplicationRequest
	IsSynthetic bool
}

// ScoreResponse is the subset of the /score response the benchmark reads.
type ScoreResponse struct {
	IdentityID string           `json:"identityId"`
	FinalScore float64          `json:"finalRiskScore"`
	RiskLevel  domain.RiskLevel `json:"riskLevel"`
	Signals    []string         `json:"primarySignals"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Synthetic flagged
	FalsePositives int64 // Genuine flagged
	TrueNegatives  int64 // Genuine passed
	FalseNegatives int64 // Synthetic passed

	TotalProcessed int64
	TotalSynthetic int64
	TotalGenuine   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled application CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum applications to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	minLevel := flag.String("min-level", "high", "Lowest risk level counted as a synthetic verdict")
	verbose := flag.Bool("verbose", false, "Print each application result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/applications.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	threshold, err := domain.ParseRiskLevel(*minLevel)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - Synthetic Identity Detection")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Min Level:   %s\n", threshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading applications from %s...\n", *csvPath)
	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	apps, err := readApplications(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(apps) == 0 {
		fmt.Println("ERROR: no applications in CSV")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d applications\n", len(apps))

	synthetic := 0
	for _, a := range apps {
		if a.IsSynthetic {
			synthetic++
		}
	}
	fmt.Printf("  - Synthetic: %d (%.2f%%)\n", synthetic, 100*float64(synthetic)/float64(len(apps)))
	fmt.Printf("  - Genuine:   %d (%.2f%%)\n", len(apps)-synthetic, 100*float64(len(apps)-synthetic)/float64(len(apps)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	m := runBenchmark(apps, *baseURL, *tenantID, *workers, threshold, *verbose)
	duration := time.Since(startTime)

	printResults(m, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readApplications parses the labelled CSV. Malformed rows are skipped.
func readApplications(r io.Reader, limit int) ([]LabelledApplication, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"ssn", "name", "dob", "is_synthetic"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var apps []LabelledApplication
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		label := field(record, "is_synthetic")
		apps = append(apps, LabelledApplication{
			Request: api.ApplicationRequest{
				SSN:               field(record, "ssn"),
				Name:              field(record, "name"),
				Address:           field(record, "address"),
				Phone:             field(record, "phone"),
				Email:             field(record, "email"),
				DeviceFingerprint: field(record, "device"),
				DateOfBirth:       field(record, "dob"),
			},
			IsSynthetic: label == "1" || strings.EqualFold(label, "true"),
		})

		if limit > 0 && len(apps) >= limit {
			break
		}
	}

	return apps, nil
}

// record classifies one verdict into the confusion matrix.
func (m *Metrics) record(predicted, actual bool) {
	if actual {
		atomic.AddInt64(&m.TotalSynthetic, 1)
	} else {
		atomic.AddInt64(&m.TotalGenuine, 1)
	}

	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Scores are precision, recall, F1 and accuracy; zero denominators give 0.
func (m *Metrics) Scores() (precision, recall, f1, accuracy float64) {
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	return precision, recall, f1, accuracy
}

func runBenchmark(apps []LabelledApplication, baseURL, tenantID string, numWorkers int, threshold domain.RiskLevel, verbose bool) *Metrics {
	m := &Metrics{}

	work := make(chan LabelledApplication, 100)
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for app := range work {
				start := time.Now()
				result, err := scoreApplication(client, baseURL, tenantID, &app.Request)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&m.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", app.Request.Name, err)
					}
					continue
				}

				predicted := result.RiskLevel >= threshold
				m.record(predicted, app.IsSynthetic)

				if verbose {
					status := "ok "
					if predicted != app.IsSynthetic {
						status = "BAD"
					}
					fmt.Printf("%s %-12.12s | Synthetic: %-5v | Kestrel: %-8s (%.2f) | %s\n",
						status,
						result.IdentityID,
						app.IsSynthetic,
						result.RiskLevel,
						result.FinalScore,
						strings.Join(result.Signals, ","),
					)
				}
			}
		}()
	}

	for _, app := range apps {
		work <- app
	}
	close(work)

	wg.Wait()

	return m
}

func scoreApplication(client *http.Client, baseURL, tenantID string, app *api.ApplicationRequest) (*ScoreResponse, error) {
	body, err := json.Marshal(app)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Synthetic:  %d\n", m.TotalSynthetic)
	fmt.Printf("   Total Genuine:    %d\n", m.TotalGenuine)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    SYNTH      GENUINE")
	fmt.Printf("   Actual  S   | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           G   | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision, recall, f1, accuracy := m.Scores()

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were synthetic)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of synthetics, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	if m.TotalSynthetic > 0 {
		fmt.Printf("   Missed:     %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalSynthetic,
			float64(m.FalseNegatives)/float64(m.TotalSynthetic)*100)
	}
	if m.TotalGenuine > 0 {
		fmt.Printf("   False Alarms: %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalGenuine,
			float64(m.FalsePositives)/float64(m.TotalGenuine)*100)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rate := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f applications/sec\n", rate)
	}

	fmt.Println()
}
