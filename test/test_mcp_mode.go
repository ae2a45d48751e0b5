// Command test_mcp_mode checks that loading the configuration writes nothing
// to stdout, which the MCP stdio transport owns.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/localrivet/codematch/internal/config"
)

func main() {
	fmt.Println("=== Starting stdout check ===")

	r, w, err := os.Pipe()
	if err != nil {
		fmt.Printf("Error creating pipe: %v\n", err)
		os.Exit(1)
	}
	stdout := os.Stdout
	os.Stdout = w

	cfg, loadErr := config.LoadConfigWithPath(config.DefaultConfigFilename)

	os.Stdout = stdout
	w.Close()
	var captured bytes.Buffer
	io.Copy(&captured, r)

	if loadErr != nil {
		fmt.Printf("Error loading config: %v\n", loadErr)
		os.Exit(1)
	}

	fmt.Println("=== Config Loaded Successfully ===")
	fmt.Printf("Data dir: %s\n", cfg.Store.DataDir)
	fmt.Printf("Corpus: %s\n", cfg.CorpusPath())
	fmt.Printf("Query: %s\n", cfg.QueryPath())
	fmt.Printf("Log Level: %s\n", cfg.Logging.Level)

	if captured.Len() > 0 {
		fmt.Printf("FAIL: configuration loading wrote %d bytes to stdout:\n%s\n", captured.Len(), captured.String())
		os.Exit(1)
	}
	fmt.Println("\n=== PASS: stdout untouched ===")
}
