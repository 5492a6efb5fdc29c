package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hurttlocker/tasksift/internal/config"
	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/secrets"
)

func runConfig(args []string) error {
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
	if jsonOut {
		return printJSON(a.cfg)
	}

	cfg := a.cfg
	backend, err := secrets.LoadFile(cfg.SecretsFile.Value)
	if err != nil {
		return err
	}
	inFile := map[string]bool{}
	for _, name := range backend.Names() {
		inFile[name] = true
	}

	fmt.Printf("config file:  %s\n", cfg.ConfigPath)
	printValue("db_path", cfg.DBPath)
	printValue("secrets_file", cfg.SecretsFile)
	printValue("log.level", cfg.LogLevel)
	printValue("log.format", cfg.LogFormat)
	printValue("http.addr", cfg.HTTPAddr)
	fmt.Println("providers:")
	for i, p := range cfg.Providers {
		key := "secret " + p.SecretName + " " + secretState(p.SecretName, inFile)
		if p.HasExplicitKey() {
			key = fmt.Sprintf("explicit key (%s)", describeSource(p.ExplicitKey))
		}
		fmt.Printf("  %d. %-12s %s [%s] timeout=%s, %s\n", i+1, p.Name, p.Spec.Value, describeSource(p.Spec), p.Timeout, key)
	}
	printValue("google_tasks.list", cfg.GoogleTasks.List)
	printValue("google_tasks.credentials", cfg.GoogleTasks.Credentials)
	printValue("google_tasks.token", cfg.GoogleTasks.Token)
	return nil
}

// secretState reports where a provider secret would be found, without
// revealing it. A set env variable wins even when empty, as in secrets.Resolver.
func secretState(name string, inFile map[string]bool) string {
	env := secrets.EnvKey(name)
	if _, ok := os.LookupEnv(env); ok {
		return "(env " + env + ")"
	}
	if inFile[name] {
		return "(secrets file)"
	}
	return "(not set)"
}

func printValue(name string, v config.ResolvedValue) {
	fmt.Printf("%-13s %s [%s]\n", name+":", v.Value, describeSource(v))
}

func describeSource(v config.ResolvedValue) string {
	if v.From == "" {
		return string(v.Source)
	}
	return string(v.Source) + ": " + v.From
}

func runCategories(args []string) error {
	jsonOut := false
	for _, arg := range args {
		if arg == "--json" {
			jsonOut = true
			continue
		}
		return fmt.Errorf("unknown flag: %s", arg)
	}

	rules := extract.CategoryRules()
	if jsonOut {
		return printJSON(rules)
	}
	for _, r := range rules {
		keywords := "(catch-all)"
		if len(r.Keywords) > 0 {
			keywords = strings.Join(r.Keywords, ", ")
		}
		fmt.Printf("%s %-9s %s\n", r.Icon, r.Name, keywords)
	}
	return nil
}
