package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/store"
)

func runList(args []string) error {
	opts := store.ListOpts{Limit: store.DefaultListLimit}
	status := "open"
	jsonOut := false

	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--category"); ok {
			opts.Category = strings.ToLower(strings.TrimSpace(v))
			if !extract.IsValidCategory(opts.Category) {
				return fmt.Errorf("unknown category: %s", v)
			}
			continue
		}
		if v, ok := flagValue(args, &i, "--priority"); ok {
			opts.Priority = strings.ToLower(strings.TrimSpace(v))
			if !extract.IsValidPriority(opts.Priority) {
				return fmt.Errorf("unknown priority: %s", v)
			}
			continue
		}
		if v, ok := flagValue(args, &i, "--status"); ok {
			status = strings.ToLower(strings.TrimSpace(v))
			continue
		}
		if v, ok := flagValue(args, &i, "--limit"); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --limit: %s", v)
			}
			opts.Limit = n
			continue
		}
		switch {
		case args[i] == "--json":
			jsonOut = true
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}

	switch status {
	case "open":
		f := false
		opts.Completed = &f
	case "done":
		t := true
		opts.Completed = &t
	case "all":
	default:
		return fmt.Errorf("invalid --status %q (open, done, all)", status)
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	todos, err := s.ListTasks(context.Background(), opts)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(todos)
	}
	if len(todos) == 0 {
		fmt.Println("No todos.")
		return nil
	}
	for _, t := range todos {
		fmt.Println(formatTask(t))
	}
	return nil
}

func runDone(args []string) error {
	var id string
	completed := true
	for _, arg := range args {
		switch {
		case arg == "--undo":
			completed = false
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		case id == "":
			id = arg
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if id == "" {
		return fmt.Errorf("usage: tasksift done <id> [--undo]")
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetCompleted(context.Background(), id, completed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("todo %s not found", id)
		}
		return err
	}
	if completed {
		fmt.Printf("Completed %s\n", id)
	} else {
		fmt.Printf("Reopened %s\n", id)
	}
	return nil
}

func runDelete(args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: tasksift delete <id>")
	}
	id := args[0]

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteTask(context.Background(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("todo %s not found", id)
		}
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}

func runStats(args []string) error {
	jsonOut := false
	for _, arg := range args {
		if arg == "--json" {
			jsonOut = true
			continue
		}
		return fmt.Errorf("unknown flag: %s", arg)
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Stats(context.Background())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}

	fmt.Printf("Todos:       %d (%d open, %d completed)\n", st.TodoCount, st.OpenCount, st.CompletedCount)
	fmt.Printf("Extractions: %d\n", st.RunCount)
	printCounts("By category:", st.ByCategory)
	printCounts("By source:", st.BySource)
	fmt.Printf("DB size:     %s\n", formatBytes(st.DBSizeBytes))
	return nil
}

func printCounts(title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println(title)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[k])
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
