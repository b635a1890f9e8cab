package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context(), withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume the job queue in this process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume crawl jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.RunWorker(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Migrate(cmd.Context())
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <source|all>...",
		Short: "Create jobs and publish them to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := parseSources(args)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := appInstance.Enqueue(cmd.Context(), srcs...)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, job := range jobs {
				if encErr := enc.Encode(job); encErr != nil {
					return errors.Join(err, encErr)
				}
			}
			return err
		},
	}
}

func newCollectCmd() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "collect <source>",
		Short: "Collect one source in process without a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := parseSources(args)
			if err != nil {
				return err
			}
			if len(srcs) != 1 {
				return fmt.Errorf("collect takes exactly one source, got %d", len(srcs))
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if probe {
				n, err := appInstance.Probe(cmd.Context(), srcs[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records at entry\n", srcs[0], n)
				return nil
			}
			res, err := appInstance.Collect(cmd.Context(), srcs[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records from %d pages (%s)\n", srcs[0], res.Records, res.Pages, res.Stop)
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "only read the entry point and report its record count")
	return cmd
}
