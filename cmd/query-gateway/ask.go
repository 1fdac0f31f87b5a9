package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/profitpulse/query-gateway/internal/gateway"
	"github.com/profitpulse/query-gateway/internal/observability"
)

var (
	askTenant string
	askJSON   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question for a tenant and print the outcome",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validated(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnvironment(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx = observability.WithCorrelationID(ctx, uuid.New().String())
		ctx = observability.WithTenantID(ctx, askTenant)

		outcome := env.Asker.Ask(ctx, gateway.Request{
			Question: strings.Join(args, " "),
			TenantID: askTenant,
		})

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(outcome), "encode outcome")
		}
		return printOutcome(outcome)
	},
}

func printOutcome(outcome gateway.Outcome) error {
	pterm.DefaultSection.Println("SQL")
	pterm.Println(outcome.SQL)

	switch outcome.Status {
	case gateway.StatusSuccess:
		pterm.DefaultSection.Println("Result")
		if len(outcome.Data) == 0 {
			pterm.Info.Println("No rows.")
		} else if err := pterm.DefaultTable.WithHasHeader().WithData(tableData(outcome)).Render(); err != nil {
			return eris.Wrap(err, "render result table")
		}
		if outcome.Truncated {
			pterm.Warning.Printfln("Result truncated to %d rows.", outcome.RowCount)
		}
		pterm.Success.Println(outcome.Explanation)
	case gateway.StatusRejected:
		pterm.Warning.Printfln("%s (%s)", outcome.Error, outcome.Category)
	default:
		pterm.Error.Printfln("%s [%s]", outcome.Error, outcome.ErrorCode)
	}

	if outcome.Cached {
		pterm.Info.Println("Served from cache.")
	}
	return nil
}

func tableData(outcome gateway.Outcome) pterm.TableData {
	data := pterm.TableData{outcome.Data[0].Columns}
	for _, row := range outcome.Data {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		data = append(data, cells)
	}
	return data
}

func init() {
	askCmd.Flags().StringVar(&askTenant, "tenant", "", "tenant (user) id to answer for")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the outcome as JSON")
	_ = askCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(askCmd)
}
