package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2010089698/sora2-251007-3/internal/adapter/repo"
	"github.com/2010089698/sora2-251007-3/internal/db/migrations"
	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/infra/credentials"
	"github.com/2010089698/sora2-251007-3/internal/providers/sora"
	"github.com/2010089698/sora2-251007-3/internal/worker"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			version, err := migrations.Version(cmd.Context(), e.db, string(e.dialect))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, e.dialect)
			return nil
		},
	}
}

func newAPIKeyCmd() *cobra.Command {
	apikey := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the stored OpenAI API key",
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the OpenAI API key used when OPENAI_API_KEY is unset",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			key = strings.TrimSpace(key)
			if key == "" {
				key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
			}
			if key == "" {
				return errors.New("api key is required via --key or OPENAI_API_KEY")
			}
			e, err := openEnv(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := credentials.NewStore(e.runner).SetOpenAIAPIKey(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "openai api key stored")
			return nil
		},
	}
	set.Flags().String("key", "", "API key (falls back to OPENAI_API_KEY)")
	apikey.AddCommand(set)
	return apikey
}

func newJobsCmd() *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect video jobs",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawStatus, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			filter := domain.JobFilter{Limit: limit}
			if rawStatus = strings.TrimSpace(strings.ToLower(rawStatus)); rawStatus != "" {
				filter.Status = domain.JobStatus(rawStatus)
				if !filter.Status.Valid() {
					return fmt.Errorf("unknown status %q", rawStatus)
				}
			}
			e, err := openEnv(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			items, err := repo.NewJobRepository(e.runner).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSORA JOB\tCREATED\tPROMPT\tERROR")
			for _, j := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					j.ID, j.Status, j.RemoteID, j.CreatedAt.Format(time.RFC3339), truncate(j.Prompt, 40), truncate(j.ErrorMessage, 40))
			}
			return tw.Flush()
		},
	}
	list.Flags().String("status", "", "filter by status (queued, processing, completed, failed)")
	list.Flags().Int("limit", 50, "maximum number of jobs, 0 for all")
	jobs.AddCommand(list)
	return jobs
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single reconciliation tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			factory := sora.NewFactory(sora.Options{
				APIKey:         e.cfg.OpenAIAPIKey,
				BaseURL:        e.cfg.OpenAIBaseURL,
				Model:          e.cfg.OpenAIVideoModel,
				BetaHeader:     e.cfg.OpenAIBetaHeader,
				RequestTimeout: e.cfg.OpenAITimeout,
				Logger:         &e.logger,
			}, credentials.NewStore(e.runner))
			poller := worker.NewReconciler(repo.NewJobRepository(e.runner), worker.FromFactory(factory), worker.Options{Logger: &e.logger})
			report, err := poller.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
