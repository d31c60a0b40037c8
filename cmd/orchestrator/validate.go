package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/AaronLay10/SentientTimeline/internal/orchestrator"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// lintCommander accepts every device command; validate only checks that
// params bind.
type lintCommander struct{}

func (lintCommander) Execute(string, string, map[string]interface{}) error { return nil }

func validate(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.NewExitError("validate: at least one file or directory is required", 2)
	}

	var files []string
	for _, arg := range ctx.Args() {
		found, err := timelineFiles(arg)
		if err != nil {
			return err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return cli.NewExitError("validate: no timeline files found", 1)
	}

	failed := lintFiles(ctx.App.Writer, files)
	if failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d timeline files invalid", failed, len(files)), 1)
	}
	return nil
}

// lintFiles loads each file against the built-in actions and reports one
// line per file. It returns the number of failures.
func lintFiles(out io.Writer, files []string) int {
	actions := orchestrator.NewActions(zerolog.Nop())
	catalog := orchestrator.NewCatalog(actions, zerolog.Nop())
	actions.RegisterTimelineActions(timeline.NewScheduler(), catalog)
	actions.RegisterDeviceActions(lintCommander{})

	seen := make(map[string]string)
	failed := 0
	for _, path := range files {
		def, err := orchestrator.LoadDefinitionFile(path, actions)
		if err == nil {
			if prev, dup := seen[def.ID()]; dup {
				err = fmt.Errorf("duplicate timeline id %q (also in %s)", def.ID(), prev)
			} else {
				seen[def.ID()] = path
			}
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s (%s, %d nodes, %d clips)\n", path, def.ID(), def.NumNodes(), def.NumClips())
	}
	return failed
}

func timelineFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !orchestrator.IsTimelineFile(path) {
			return nil, errors.New(path + ": not a .yaml, .yml or .json file")
		}
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !orchestrator.IsTimelineFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
