package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

type pendingLister interface {
	PendingFor(ctx context.Context, stage models.Stage) iter.Seq2[models.Lot, error]
}

type provenanceResolver interface {
	Resolve(ctx context.Context, token string) (*models.Provenance, error)
}

type lotOverview interface {
	Overview(ctx context.Context, filter models.LotFilter) ([]models.LotWithStatus, *models.Pagination, error)
}

type services struct {
	workflow    pendingLister
	provenance  provenanceResolver
	supplyChain lotOverview
	close       func()
}

type serviceLoader func(ctx context.Context) (*services, error)

type migrator func(ctx context.Context) ([]string, error)

func newRootCmd(load serviceLoader, migrate migrator) *cobra.Command {
	root := &cobra.Command{
		Use:           "herbtracectl",
		Short:         "Operate the HerbTrace traceability store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(migrate),
		newPendingCmd(load),
		newProvenanceCmd(load),
		newSupplyChainCmd(load),
	)
	return root
}

func newMigrateCmd(migrate migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
			}
			return nil
		},
	}
}

func newPendingCmd(load serviceLoader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending <stage>",
		Short: "List lots waiting on a stage",
		Long: `List lots whose preceding stage is complete and whose own stage is not.

Stages: farmer, lab_technician, processor, manager.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := models.ParseStage(args[0])
			if err != nil {
				return err
			}
			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			table := newLotTable("LOT", "SPECIES", "FARMER", "LOOKUP", "STATUS")
			count := 0
			for lot, err := range svc.workflow.PendingFor(cmd.Context(), stage) {
				if err != nil {
					return err
				}
				table.add(lot.ID, lot.Species, lot.FarmerName, lot.LookupCode, string(lot.Status))
				count++
				if limit > 0 && count >= limit {
					break
				}
			}
			return table.writeTo(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many lots (0 lists all)")
	return cmd
}

func newProvenanceCmd(load serviceLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "provenance <lookup-code|batch-id|lot-id>",
		Short: "Print the consumer provenance view of a lot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			provenance, err := svc.provenance.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), provenance)
		},
	}
}

func newSupplyChainCmd(load serviceLoader) *cobra.Command {
	var (
		species  string
		status   string
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "supply-chain",
		Short: "Summarise lots by supply chain stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			lots, pagination, err := svc.supplyChain.Overview(cmd.Context(), models.LotFilter{
				Status:   models.LotStatus(status),
				Species:  species,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			table := newLotTable("LOT", "SPECIES", "STAGE", "STATUS")
			for _, lot := range lots {
				table.add(lot.ID, lot.Species, fmt.Sprint(lot.SupplyChainStatus.Stage), lot.SupplyChainStatus.Label)
			}
			if err := table.writeTo(cmd.OutOrStdout()); err != nil {
				return err
			}
			if pagination != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d lots\n", len(lots), pagination.TotalCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&species, "species", "", "filter by species")
	cmd.Flags().StringVar(&status, "status", "", "filter by lot status")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "maximum lots listed")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
