/*
Copyright © 2025 inkwisp

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkwisp/mediadrop/internal/config"
	"github.com/inkwisp/mediadrop/internal/logutil"
	"github.com/inkwisp/mediadrop/internal/notify"
	"github.com/inkwisp/mediadrop/internal/publish"
	"github.com/inkwisp/mediadrop/internal/publish/facebook"
	"github.com/inkwisp/mediadrop/internal/publish/instagram"
	"github.com/inkwisp/mediadrop/internal/publish/meta"
	"github.com/inkwisp/mediadrop/internal/publish/threads"
	"github.com/inkwisp/mediadrop/internal/storage"
)

var (
	configPath  string
	targetsFlag []string
	dryRun      bool
	verbose     bool
)

// Adapter invocation order is fixed; target filtering preserves it.
var orderedTargets = []string{"instagram", "facebook", "threads"}

var supportedTargets = map[string]struct{}{
	"instagram": {},
	"facebook":  {},
	"threads":   {},
}

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mediadrop",
		Short: "Publish one stored media file to social platforms",
		Long: "mediadrop picks one pending media file from the configured bucket, " +
			"publishes it to Instagram, Facebook, and Threads with verification, " +
			"reports the outcome to Telegram, and deletes the file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  mediadrop
  mediadrop --target threads --dry-run
  MEDIADROP_CONFIG=./mediadrop.yaml mediadrop --verbose`,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringSliceVar(&targetsFlag, "target", []string{"instagram", "facebook", "threads"}, "Targets to publish to (instagram, facebook, threads, or all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without publishing or deleting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logutil.SetVerbose(verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	targets, err := normalizeTargets(targetsFlag)
	if err != nil {
		return err
	}

	store, err := storage.New(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Storage.Prefix,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
		LinkTTL:   cfg.Storage.LinkTTL.Std(),
	})
	if err != nil {
		return err
	}

	if dryRun {
		return simulate(ctx, store, targets, cmd.OutOrStdout())
	}

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	gw := publish.NewGateway()

	publishers, gate, err := buildPublishers(ctx, gw, cfg, targets, notifier)
	if err != nil {
		return err
	}

	runner := &publish.Runner{
		Storage:    store,
		Notifier:   notifier,
		Publishers: publishers,
		Gate:       gate,
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if len(report.Results) > 0 && !report.Published {
		return errors.New("no platform published")
	}
	return nil
}

func normalizeTargets(values []string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return orderedTargets, nil
		}
		if _, ok := supportedTargets[raw]; !ok {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		seen[raw] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for _, name := range orderedTargets {
		if _, ok := seen[name]; ok {
			result = append(result, name)
		}
	}
	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}
	return result, nil
}

func buildPublishers(ctx context.Context, gw *publish.Gateway, cfg config.Config, targets []string, notifier publish.Notifier) ([]publish.Publisher, publish.GateFunc, error) {
	needsMeta := false
	for _, t := range targets {
		if t == "instagram" || t == "facebook" {
			needsMeta = true
		}
	}

	var (
		metaClient *meta.Client
		pageToken  string
	)
	if needsMeta {
		var err error
		metaClient, err = meta.New(gw, meta.Config{
			BaseURL:     cfg.Meta.BaseURL,
			UserToken:   cfg.Meta.UserToken,
			PageID:      cfg.Meta.PageID,
			InstagramID: cfg.Meta.InstagramID,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := metaClient.CheckToken(ctx); err != nil {
			notifier.Notify(ctx, fmt.Sprintf("token validation failed: %v", err), true)
			notifier.Flush(ctx)
			return nil, nil, err
		}
		pageToken, err = metaClient.PageAccessToken(ctx)
		if err != nil {
			notifier.Notify(ctx, fmt.Sprintf("page token lookup failed: %v", err), true)
			notifier.Flush(ctx)
			return nil, nil, err
		}
	}

	constructors := map[string]func() (publish.Publisher, error){
		"instagram": func() (publish.Publisher, error) {
			return instagram.New(gw, instagram.Config{
				BaseURL:       cfg.Meta.BaseURL,
				AccountID:     cfg.Meta.InstagramID,
				Publish:       cfg.Instagram.Publish.Policy(),
				Verify:        cfg.Instagram.Verify.Policy(),
				Readiness:     cfg.Instagram.Readiness.Policy(),
				IndexingDelay: cfg.Instagram.IndexingDelay.Std(),
			}, pageToken, notifier)
		},
		"facebook": func() (publish.Publisher, error) {
			return facebook.New(gw, facebook.Config{
				BaseURL:       cfg.Meta.BaseURL,
				PageID:        cfg.Meta.PageID,
				Publish:       cfg.Facebook.Publish.Policy(),
				Verify:        cfg.Facebook.Verify.Policy(),
				IndexingDelay: cfg.Facebook.IndexingDelay.Std(),
			}, pageToken, notifier)
		},
		"threads": func() (publish.Publisher, error) {
			return threads.New(gw, threads.Config{
				BaseURL:       cfg.Threads.BaseURL,
				UserID:        cfg.Threads.UserID,
				AccessToken:   cfg.Threads.AccessToken,
				Publish:       cfg.Threads.Publish.Policy(),
				Verify:        cfg.Threads.Verify.Policy(),
				Readiness:     cfg.Threads.Readiness.Policy(),
				IndexingDelay: cfg.Threads.IndexingDelay.Std(),
			}, notifier)
		},
	}

	publishers := make([]publish.Publisher, 0, len(targets))
	var errs []error
	for _, target := range targets {
		pub, err := constructors[target]()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		publishers = append(publishers, pub)
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}

	gate := func(ctx context.Context, provider string) error {
		if provider == "instagram" && metaClient != nil {
			return metaClient.InstagramLinked(ctx, pageToken)
		}
		return nil
	}
	return publishers, gate, nil
}

func simulate(ctx context.Context, store publish.Storage, targets []string, out io.Writer) error {
	items, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "[dry-run] no pending items")
		return nil
	}

	fmt.Fprintf(out, "[dry-run] %d eligible item(s)\n", len(items))
	item := items[0]
	caption := publish.CaptionFromName(item.Name)
	for _, target := range targets {
		fmt.Fprintf(out, "[dry-run] would publish %s (%s) to %s with caption %q\n", item.Name, item.Kind, target, caption)
	}
	fmt.Fprintf(out, "[dry-run] would delete %s afterwards\n", item.Name)
	return nil
}
