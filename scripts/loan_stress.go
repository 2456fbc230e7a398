//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the loan API.
//
// Usage:
//
//	go run ./scripts/loan_stress.go <equipment_id> <borrower1_id> [borrower2_id ...]
//
// Or use the convenience environment variables:
//
//	EQUIPMENT_ID=<uuid>  BORROWER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/loan_stress.go
//
// What it does:
//  1. Fires N goroutines (one per borrower) all requesting a loan against the
//     same equipment simultaneously.
//  2. Prints how many got a loan vs. an out-of-stock conflict.
//  3. If loans granted ≤ the equipment's starting stock, the transactional
//     guard held: the conditional decrement never let the counter go negative.
//
// Prerequisites:
//   - Server must be running with DATABASE_URL set.
//   - The equipment row and the N borrowers must exist in the DB.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type loanResult struct {
	BorrowerID string
	StatusCode int
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	// Collect equipment_id and borrower_ids from cli args or env.
	equipmentID := os.Getenv("EQUIPMENT_ID")
	borrowerIDsEnv := os.Getenv("BORROWER_IDS")

	var borrowerIDs []string
	if borrowerIDsEnv != "" {
		borrowerIDs = strings.Split(borrowerIDsEnv, ",")
	}

	// Support positional args: script <equipment_id> [borrower_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		equipmentID = args[0]
	}
	if len(args) >= 2 {
		borrowerIDs = args[1:]
	}

	if equipmentID == "" {
		log.Fatal("Usage: EQUIPMENT_ID=<uuid> BORROWER_IDS=<u1,u2,...> go run ./scripts/loan_stress.go\n" +
			"  or: go run ./scripts/loan_stress.go <equipment_id> <borrower1_id> [borrower2_id ...]")
	}
	if len(borrowerIDs) == 0 {
		log.Fatal("At least one borrower ID must be provided via BORROWER_IDS env or positional args")
	}

	fmt.Printf("=== Loan Ledger Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Equipment : %s\n", equipmentID)
	fmt.Printf("Borrowers : %d\n\n", len(borrowerIDs))

	results := make([]loanResult, len(borrowerIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, bid := range borrowerIDs {
		wg.Add(1)
		go func(idx int, borrowerID string) {
			defer wg.Done()
			<-start // wait for the barrier
			results[idx] = attemptLoan(serverAddr, equipmentID, strings.TrimSpace(borrowerID))
		}(i, bid)
	}

	// Release all goroutines at once.
	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.\n")

	// Tally results.
	var granted, conflicts, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] borrower=%-38s err=%v\n", r.BorrowerID, r.Err)
		case r.StatusCode == http.StatusCreated:
			granted++
			fmt.Printf("  [LOAN] borrower=%-38s status=%d\n", r.BorrowerID, r.StatusCode)
		case r.StatusCode == http.StatusConflict:
			conflicts++
			fmt.Printf("  [FULL] borrower=%-38s status=%d out of stock\n", r.BorrowerID, r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] borrower=%-38s status=%d unexpected response\n", r.BorrowerID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Loans granted : %d\n", granted)
	fmt.Printf("Out of stock  : %d\n", conflicts)
	fmt.Printf("Failures      : %d\n", failures)
	fmt.Printf("Total         : %d\n\n", len(borrowerIDs))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("The conditional decrement inside the loan transaction allows at most")
	fmt.Println("starting-stock grants; every extra request must land in the out-of-stock bucket.")
	fmt.Printf("Loans granted: %d — if this is ≤ the equipment's starting stock, the system is correct.\n", granted)

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
}

// attemptLoan sends POST /loans for the given borrower/equipment pair and
// reports the HTTP status.
func attemptLoan(serverAddr, equipmentID, borrowerID string) loanResult {
	url := fmt.Sprintf("%s/loans", serverAddr)
	body := fmt.Sprintf(`{"borrower_id":"%s","equipment_id":"%s"}`, borrowerID, equipmentID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return loanResult{BorrowerID: borrowerID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return loanResult{BorrowerID: borrowerID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}

	return loanResult{
		BorrowerID: borrowerID,
		StatusCode: resp.StatusCode,
	}
}
