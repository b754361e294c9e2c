// Command history-gen generates the migration-history bootstrap SQL for
// teams that provision schemas through external migration tooling.
//
// Usage:
//
//	go run github.com/relforge/relforge/cmd/history-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/relforge/relforge/cmd/history-gen -output migrations
//
// Generate bootstrap files for different databases:
//
//	go run github.com/relforge/relforge/cmd/history-gen -adapter postgres -output migrations
//	go run github.com/relforge/relforge/cmd/history-gen -adapter mysql -output migrations
//	go run github.com/relforge/relforge/cmd/history-gen -adapter sqlite -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relforge/relforge/migrate/gen"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for the bootstrap file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		table          = flag.String("table", "", "History table name (default: __migration_history)")
	)

	flag.Parse()

	config := gen.DefaultConfig()
	config.OutputFolder = *outputFolder
	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}
	if *table != "" {
		config.Table = *table
	}

	var err error
	switch *adapter {
	case "postgres":
		err = gen.GeneratePostgres(&config)
	case "mysql":
		err = gen.GenerateMySQL(&config)
	case "sqlite":
		err = gen.GenerateSQLite(&config)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating bootstrap file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s bootstrap file: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
