package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hurttlocker/tasksift/internal/httpapi"
	"github.com/hurttlocker/tasksift/internal/mcp"
)

func runServe(args []string) error {
	var opts appOptions
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--addr"); ok {
			opts.httpAddr = v
			continue
		}
		if v, ok := flagValue(args, &i, "--primary"); ok {
			opts.primary = v
			continue
		}
		if v, ok := flagValue(args, &i, "--secondary"); ok {
			opts.secondary = v
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	ex, err := a.extractor()
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := httpapi.New(ex, s, a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, a.cfg.HTTPAddr.Value)
}

func runMCP(args []string) error {
	if len(args) > 0 {
		if strings.HasPrefix(args[0], "-") {
			return fmt.Errorf("unknown flag: %s", args[0])
		}
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	// stdout carries the protocol; logs stay on stderr.
	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	ex, err := a.extractor()
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	server := mcp.NewServer(mcp.ServerConfig{
		Extractor: ex,
		Store:     s,
		Logger:    a.logger,
		Version:   version,
	})
	return mcp.ServeStdio(server)
}
