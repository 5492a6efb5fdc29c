package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hurttlocker/tasksift/internal/gtasks"
	"github.com/hurttlocker/tasksift/internal/store"
)

// exportLimit bounds how many open todos one export pushes.
const exportLimit = 1000

func runExportGoogle(args []string) error {
	list := ""
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--list"); ok {
			list = v
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	if list == "" {
		list = a.cfg.GoogleTasks.List.Value
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	open := false
	todos, err := s.ListTasks(ctx, store.ListOpts{Completed: &open, Limit: exportLimit})
	if err != nil {
		return err
	}
	if len(todos) == 0 {
		fmt.Println("No open todos to export.")
		return nil
	}

	svc, err := gtasks.NewService(ctx, a.cfg.GoogleTasks.Credentials.Value, a.cfg.GoogleTasks.Token.Value)
	if err != nil {
		return err
	}
	res, err := gtasks.NewExporter(svc, a.logger).Export(ctx, list, todos)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d todo(s) to %q (%d already present)\n", res.Created, res.ListTitle, res.Skipped)
	return nil
}

func runAuthGoogle(args []string) error {
	port := gtasks.DefaultAuthPort
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--port"); ok {
			port = v
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	conf, err := gtasks.OAuthConfig(a.cfg.GoogleTasks.Credentials.Value, port)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", port))
	if err != nil {
		return fmt.Errorf("listening for oauth redirect: %w", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	tok, err := gtasks.Authorize(ctx, conf, ln, os.Stdout)
	if err != nil {
		return err
	}
	if err := gtasks.SaveToken(a.cfg.GoogleTasks.Token.Value, tok); err != nil {
		return err
	}
	fmt.Printf("Saved Google token to %s\n", a.cfg.GoogleTasks.Token.Value)
	return nil
}
