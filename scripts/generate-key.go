// Package main is a development utility for seeding a usable API key into a local database
// without running the key management API. It prints the raw key and a ready-to-run SQL
// INSERT statement. Keys created this way have no owner, so they are rejected by
// deployments running with analysis.scope_to_owner.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/dandi-dev/dandi/internal/auth"
	"github.com/dandi-dev/dandi/internal/ledger"
)

func main() {
	prefix := flag.String("prefix", "dandi-dev-", "key prefix")
	name := flag.String("name", "local development", "key name")
	limit := flag.Int64("limit", 1000, "monthly limit")
	limited := flag.Bool("limited", false, "enforce the monthly limit")
	flag.Parse()

	key, err := auth.GenerateAPIKey(*prefix)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("API Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Key: %s\n", key)
	fmt.Printf("\nLog Hint: %s\n", ledger.KeyHint(key))
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO api_keys (id, name, value, usage, limit_usage, monthly_limit, created_at)
VALUES ('%s', '%s', '%s', 0, %t, %d, NOW());
`, uuid.New().String(), *name, key, *limited, *limit)
	fmt.Println("\n==========================================================")
	fmt.Printf("Request Header: %s: %s\n", auth.APIKeyHeader, key)
	fmt.Println("==========================================================")
}
