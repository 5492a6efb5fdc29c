package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hurttlocker/tasksift/internal/extract"
)

// maxInputBytes caps text read from a file or stdin.
const maxInputBytes = 1 << 20

func runExtract(args []string) error {
	var (
		words    []string
		file     string
		mode     = extract.ModeGeneral
		dryRun   bool
		jsonOut  bool
		appFlags appOptions
	)

	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--mode"); ok {
			mode = extract.ParseMode(v)
			continue
		}
		if v, ok := flagValue(args, &i, "--file"); ok {
			file = v
			continue
		}
		if v, ok := flagValue(args, &i, "--primary"); ok {
			appFlags.primary = v
			continue
		}
		if v, ok := flagValue(args, &i, "--secondary"); ok {
			appFlags.secondary = v
			continue
		}
		switch {
		case args[i] == "--dry-run" || args[i] == "-n":
			dryRun = true
		case args[i] == "--json":
			jsonOut = true
		case args[i] == "-":
			file = "-"
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			words = append(words, args[i])
		}
	}

	text := strings.Join(words, " ")
	if file != "" {
		if len(words) > 0 {
			return fmt.Errorf("pass text as arguments or with --file, not both")
		}
		b, err := readInput(file)
		if err != nil {
			return err
		}
		text = string(b)
	} else if text == "" {
		return fmt.Errorf("usage: tasksift extract <text> | --file <path> | -")
	}

	a, err := loadApp(appFlags)
	if err != nil {
		return err
	}
	ex, err := a.extractor()
	if err != nil {
		return err
	}

	ctx := context.Background()
	res, err := ex.Extract(ctx, text, mode)
	if err != nil {
		return err
	}

	if !dryRun {
		s, err := a.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveTasks(ctx, res.Todos); err != nil {
			return fmt.Errorf("saving todos: %w", err)
		}
		if _, err := s.RecordRun(ctx, res, text); err != nil {
			a.logger.Warn("recording run failed", "err", err)
		}
	}

	if jsonOut {
		return printJSON(res)
	}

	if res.Count == 0 {
		fmt.Println("No todos found.")
		return nil
	}
	fmt.Printf("Extracted %d todo(s) [%s]:\n", res.Count, strings.Join(res.Sources(), ", "))
	for _, t := range res.Todos {
		fmt.Println(formatTask(t))
	}
	if dryRun {
		fmt.Println("\nDry run: nothing saved.")
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(b) > maxInputBytes {
		return nil, fmt.Errorf("input exceeds %d bytes", maxInputBytes)
	}
	return b, nil
}

func formatTask(t extract.Task) string {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	due := ""
	if t.DueDate != nil {
		due = ", due " + *t.DueDate
	}
	line := fmt.Sprintf("  [%s] %s  %s (%s/%s%s) via %s", mark, t.ID, t.Title, t.Category, t.Priority, due, t.Source)
	if t.Context != "" {
		line += "\n        context: " + t.Context
	}
	return line
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
