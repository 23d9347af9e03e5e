// agentctl runs one inventory workflow request against a gateway and renders
// live progress in the terminal.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/client"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/protocol"
	"github.com/yuin/goldmark"
)

const defaultRequest = "Analyze inventory and recommend restocking priorities"

var (
	stepPending  = color.New(color.Faint)
	stepActive   = color.New(color.FgYellow, color.Bold)
	stepComplete = color.New(color.FgGreen)
	stepError    = color.New(color.FgRed, color.Bold)
)

func main() {
	addr := flag.String("addr", "ws://localhost:8000", "gateway base URL")
	storeID := flag.String("store", "", "optional store ID to scope the analysis")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall run timeout")
	html := flag.Bool("html", false, "render the result as HTML instead of markdown")
	flag.Parse()

	request := defaultRequest
	if flag.NArg() > 0 {
		request = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	req := protocol.Request{Text: request, StoreID: *storeID}

	fmt.Printf("Request: %s\n\n", request)

	rendered := 0
	outcome, err := client.New(*addr).Run(ctx, req, func(steps []client.Step) {
		rendered = renderSteps(steps, rendered)
	})
	fmt.Println()

	if err != nil {
		stepError.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}

	switch {
	case outcome.Success:
		if err := printResult(outcome.Result, *html); err != nil {
			stepError.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
			os.Exit(1)
		}
	case outcome.Disconnected:
		stepError.Fprintln(os.Stderr, "Connection lost before the workflow finished; its outcome is unknown.")
		os.Exit(1)
	default:
		stepError.Fprintf(os.Stderr, "Workflow failed: %s\n", outcome.ErrMessage)
		os.Exit(1)
	}
}

// renderSteps redraws the step list in place. prev is how many lines the
// previous draw used; the cursor is moved back up that far first.
func renderSteps(steps []client.Step, prev int) int {
	if prev > 0 {
		fmt.Printf("\033[%dA", prev)
	}
	for _, s := range steps {
		var marker string
		var c *color.Color
		switch s.Status {
		case client.StatusActive:
			marker, c = "●", stepActive
		case client.StatusComplete:
			marker, c = "✔", stepComplete
		case client.StatusError:
			marker, c = "✘", stepError
		default:
			marker, c = "○", stepPending
		}
		c.Printf("  %s %s\n", marker, s.Label)
	}
	return len(steps)
}

func printResult(markdown string, asHTML bool) error {
	if !asHTML {
		fmt.Println(markdown)
		return nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
