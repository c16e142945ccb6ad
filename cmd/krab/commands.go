package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
	"github.com/krabwidget/krab/internal/dispatcher"
	"github.com/krabwidget/krab/internal/tui"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}
}

func runChat(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.New(ctx, a.dispatcher, a.bus)

	// Start Bubble Tea program in a goroutine so we can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	go func() {
		if err := a.dispatcher.AutoConnect(ctx); err != nil {
			a.log.WithError(err).Warn("auto-connect failed")
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		a.log.Info("shutdown signal received, cleaning up")
		a.dispatcher.Disconnect()
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		select {
		case err := <-errChan:
			if err != nil {
				a.log.WithError(err).Warn("TUI exit error")
			}
		case <-shutdownCtx.Done():
			a.log.Warn("shutdown timeout exceeded, forcing exit")
		}
		return nil
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the backends and their settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			printBackends(cmd.OutOrStdout(), a.dispatcher.Configs())
			return nil
		},
	}
}

func printBackends(w io.Writer, set config.Set) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tKIND\tNAME\tURL\tMODEL\tTOKEN")
	for _, k := range backend.Kinds() {
		desc, _ := backend.Describe(k)
		cfg := set.Backend(k)
		marker := ""
		if k == set.Selected {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, k, desc.DisplayName, orDash(cfg.BaseURL), orDash(cfg.Model), maskToken(cfg.Token))
	}
	tw.Flush()
	fmt.Fprintf(w, "\nauto-connect: %v\n", set.AutoConnect)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// maskToken keeps the last four characters of a secret.
func maskToken(token string) string {
	switch {
	case token == "":
		return "-"
	case len(token) <= 4:
		return "****"
	default:
		return "****" + token[len(token)-4:]
	}
}

func newSelectCmd() *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "select <kind>",
		Short: "Select the active backend",
		Long:  "Select the active backend. Kinds: none, " + kindList() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := backend.ParseKind(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.dispatcher.SelectBackend(cmd.Context(), kind, connect); err != nil {
				return err
			}
			desc, _ := backend.Describe(kind)
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", desc.DisplayName, a.dispatcher.Status().DisplayText())
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "connect right after selecting")
	return cmd
}

func newConfigureCmd() *cobra.Command {
	var (
		baseURL     string
		token       string
		model       string
		autoConnect bool
	)

	cmd := &cobra.Command{
		Use:   "configure <kind>",
		Short: "Change the settings of a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := backend.ParseKind(args[0])
			if err != nil {
				return err
			}
			if kind == backend.KindNone {
				return fmt.Errorf("choose one of: %s", kindList())
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			set := a.dispatcher.Configs()
			cfg := set.Backend(kind)
			f := cmd.Flags()
			if f.Changed("url") {
				cfg.BaseURL = baseURL
			}
			if f.Changed("token") {
				cfg.Token = token
			}
			if f.Changed("model") {
				cfg.Model = model
			}
			if err := a.dispatcher.UpdateConfig(ctx, kind, cfg); err != nil {
				return err
			}
			if f.Changed("auto-connect") {
				if err := a.dispatcher.SetAutoConnect(ctx, autoConnect); err != nil {
					return err
				}
			}

			if err := backend.Validate(kind, cfg); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved, but incomplete: %v\n", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&baseURL, "url", "", "base URL of the API")
	f.StringVar(&token, "token", "", "API key or bearer token")
	f.StringVar(&model, "model", "", "model name")
	f.BoolVar(&autoConnect, "auto-connect", true, "connect automatically on start-up")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [kind...]",
		Short: "Run health checks against configured backends",
		Long:  "Run health checks in parallel. Without arguments every backend is checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := backend.Kinds()
			if len(args) > 0 {
				kinds = kinds[:0]
				for _, arg := range args {
					k, err := backend.ParseKind(arg)
					if err != nil {
						return err
					}
					kinds = append(kinds, k)
				}
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			checker := backend.NewHealthChecker(a.transport, a.settings.HealthTimeout)
			results := checkAll(cmd.Context(), checker, a.dispatcher.Configs(), kinds)
			return printChecks(cmd.OutOrStdout(), kinds, results)
		},
	}
}

type checkResult struct {
	err  error
	took time.Duration
}

// checkAll probes every kind concurrently. A failing check does not stop
// the others.
func checkAll(ctx context.Context, checker dispatcher.HealthChecker, set config.Set, kinds []backend.Kind) map[backend.Kind]checkResult {
	var mu sync.Mutex
	results := make(map[backend.Kind]checkResult, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for _, k := range kinds {
		k := k
		g.Go(func() error {
			start := time.Now()
			err := checker.Check(gctx, k, set.Backend(k))
			mu.Lock()
			results[k] = checkResult{err: err, took: time.Since(start)}
			mu.Unlock()
			return nil // Return nil to not abort errgroup
		})
	}
	g.Wait()
	return results
}

func printChecks(w io.Writer, kinds []backend.Kind, results map[backend.Kind]checkResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	failed := 0
	for _, k := range kinds {
		r := results[k]
		status := "ok"
		if r.err != nil {
			status = r.err.Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k, r.took.Round(time.Millisecond), status)
	}
	tw.Flush()
	if failed > 0 {
		return fmt.Errorf("%d of %d backends failed", failed, len(kinds))
	}
	return nil
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message to the selected backend and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.dispatcher.Connect(ctx); err != nil {
				return err
			}
			reply, err := a.dispatcher.SendMessage(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print or clear the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if clearAll {
				if err := a.dispatcher.ClearMessages(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			}

			printHistory(cmd.OutOrStdout(), a.dispatcher.Messages(), limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of messages to print")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete the stored conversation")
	return cmd
}

func printHistory(w io.Writer, msgs []backend.ChatMessage, limit int) {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	for _, m := range msgs {
		who := "Krab"
		if m.FromUser {
			who = "You"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), who, m.Content)
	}
}

func kindList() string {
	kinds := backend.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
