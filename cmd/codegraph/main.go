// Command codegraph serves the code graph over MCP stdio. The index
// subcommand runs a one-shot build instead.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/config"
	"github.com/DeusData/codegraph/internal/parser"
	"github.com/DeusData/codegraph/internal/pipeline"
	"github.com/DeusData/codegraph/internal/store"
	"github.com/DeusData/codegraph/internal/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version":
			fmt.Println("codegraph", version)
			os.Exit(0)
		case "index":
			if len(os.Args) < 3 {
				log.Fatal("usage: codegraph index <path>")
			}
			if err := runIndex(os.Args[2]); err != nil {
				log.Fatalf("index err=%v", err)
			}
			return
		}
	}

	s, err := store.Open()
	if err != nil {
		log.Fatalf("store open err=%v", err)
	}

	ps, err := parser.New()
	if err != nil {
		log.Fatalf("parser init err=%v", err)
	}

	srv := tools.NewServer(s, analyzer.NewRegistry(ps))

	runErr := srv.MCPServer().Run(context.Background(), &mcp.StdioTransport{})
	s.Close()
	if runErr != nil {
		log.Fatalf("server err=%v", runErr)
	}
}

// runIndex builds the graph for one repository and saves it.
func runIndex(path string) error {
	// Pass timings land on stderr; stdout stays clean for the summary.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	ps, err := parser.New()
	if err != nil {
		return fmt.Errorf("parser init: %w", err)
	}

	b := pipeline.New(analyzer.NewRegistry(ps), pipeline.OptionsFromConfig(config.Load(abs)))
	g, err := b.Build(context.Background(), abs)
	if err != nil {
		return err
	}

	s, err := store.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	project := pipeline.ProjectNameFromPath(abs)
	if err := s.SaveGraph(project, abs, g); err != nil {
		return err
	}

	fmt.Printf("indexed %s: %d nodes, %d edges\n", project, g.NodeCount(), g.EdgeCount())
	return nil
}
