package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/export"
	"github.com/waiwai/settlement-bridge/internal/ingestion"
	"github.com/waiwai/settlement-bridge/internal/reconciliation"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ingestFile reads path and runs it through ingestion for the --merchant.
func ingestFile(cmd *cobra.Command, opts *rootOptions, a *App, path string, persist bool) (*ingestion.IngestResult, domain.Merchant, error) {
	m, err := opts.resolveMerchant(a)
	if err != nil {
		return nil, m, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, m, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := a.Ingestion(persist).Ingest(cmd.Context(), ingestion.IngestRequest{
		Data:         data,
		FileName:     filepath.Base(path),
		MerchantCode: m.Code,
		StoreType:    m.StoreType,
		UploadedBy:   os.Getenv("USER"),
		Source:       m.Source,
	})
	return res, m, err
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Parse a settlement workbook and record an upload batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, _, err := ingestFile(cmd, opts, a, args[0], true)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

type transferOutput struct {
	Ingest   *ingestion.IngestResult     `json:"ingest"`
	Transfer *domain.TransferResult      `json:"transfer,omitempty"`
	Records  []domain.LegacyLedgerRecord `json:"records,omitempty"`
}

func newTransferCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "transfer <file>",
		Short: "Ingest a settlement workbook and write its orders to the legacy ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, m, err := ingestFile(cmd, opts, a, args[0], !dryRun)
			if err != nil {
				return err
			}
			out := transferOutput{Ingest: res}
			if len(res.Orders) == 0 {
				return printJSON(cmd.OutOrStdout(), out)
			}

			if dryRun {
				out.Records = a.Transfers().Format(withMerchantCode(res.Orders, m.Code))
				return printJSON(cmd.OutOrStdout(), out)
			}

			tr, err := a.Transfers().Transfer(cmd.Context(), reconciliation.TransferRequest{
				BatchID:      res.BatchID,
				MerchantCode: m.Code,
				StoreType:    m.StoreType,
				Orders:       res.Orders,
				UserID:       os.Getenv("USER"),
				Source:       m.Source,
			})
			if err != nil {
				return err
			}
			out.Transfer = &tr
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !tr.Success {
				return fmt.Errorf("transfer failed: %s", tr.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "format the ledger records without writing anything")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the ledger records of a settlement workbook to an xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, m, err := ingestFile(cmd, opts, a, args[0], false)
			if err != nil {
				return err
			}
			if len(res.Orders) == 0 {
				return fmt.Errorf("%w: %v", domain.ErrNoRecords, append(res.Errors, res.Warnings...))
			}

			records := a.Transfers().Format(withMerchantCode(res.Orders, m.Code))
			data, err := export.Write(records, export.DefaultHeaders)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(records), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "export_data.xlsx", "output workbook path")
	return cmd
}

func withMerchantCode(orders []domain.OrderSummary, code string) []domain.OrderSummary {
	for i := range orders {
		if orders[i].Identity.MerchantCode == "" {
			orders[i].Identity.MerchantCode = code
		}
	}
	return orders
}
