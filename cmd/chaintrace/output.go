package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/transparencyx/chaintrace/api"
	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/flags"
	"github.com/transparencyx/chaintrace/tracing"
)

const timeLayout = "2006-01-02 15:04:05"

type queryParams struct {
	Threshold  float64
	Ratio      float64
	Origin     string
	MaxDelay   float64
	Days       int
	Limit      int
	Department string
}

func queryParamsFrom(ctx *cli.Context) queryParams {
	return queryParams{
		Threshold:  ctx.Float64(flags.ThresholdFlag.Name),
		Ratio:      ctx.Float64(flags.RatioFlag.Name),
		Origin:     ctx.String(flags.OriginFlag.Name),
		MaxDelay:   ctx.Float64(flags.MaxDelayFlag.Name),
		Days:       ctx.Int(flags.DaysFlag.Name),
		Limit:      ctx.Int(flags.LimitFlag.Name),
		Department: ctx.String(flags.DepartmentFlag.Name),
	}
}

type queryFn func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error

var queries = map[string]queryFn{
	"suspicious-departments": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		rows, err := a.SuspiciousDepartments(ctx, p.Threshold)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Department", "Claims", "Avg Anomaly Score", "Total Amount"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.DepartmentAddress, r.TotalClaims, fmt.Sprintf("%.2f", r.AvgAnomalyScore), r.TotalAmount.String()})
		}
		return nil
	},
	"chain-completeness": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		rows, err := a.PaymentChainCompleteness(ctx, p.Ratio)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Claim", "Claim Amount", "Suppliers", "Sub-suppliers", "Vendor Kept", "Flow"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.ClaimID, r.ClaimAmount.String(), r.SupplierPayments.String(), r.SubSupplierPayments.String(), r.VendorKept.String(), r.FlowClassification})
		}
		return nil
	},
	"anomalous-patterns": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		origin, err := addressFlag(p.Origin, flags.OriginFlag.Name)
		if err != nil {
			return err
		}
		rows, err := a.AnomalousPaymentPatterns(ctx, origin, p.MaxDelay)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Vendor", "Suppliers", "Sub-suppliers", "Avg Delay (s)"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Vendor, r.SupplierCount, r.SubSupplierCount, fmt.Sprintf("%.1f", r.AvgPaymentDelaySeconds)})
		}
		return nil
	},
	"payment-chain": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		origin, err := addressFlag(p.Origin, flags.OriginFlag.Name)
		if err != nil {
			return err
		}
		rows, err := a.TracePaymentChain(ctx, origin, p.Days)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Paid At", "Vendor", "Supplier", "Sub-supplier", "Gov Tx"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.PaidAt.UTC().Format(timeLayout), r.Vendor, r.Supplier, r.SubSupplier, r.GovPaymentTx})
		}
		return nil
	},
	"claim-status": func(ctx context.Context, t table.Writer, a api.Analytics, _ queryParams) error {
		rows, err := a.ClaimStatusCounts(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Status", "Claims"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Status, r.Count})
		}
		return nil
	},
	"challenges": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		rows, err := a.RecentChallenges(ctx, p.Limit)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Time", "Claim", "Staker", "Amount", "Status"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Timestamp.UTC().Format(timeLayout), r.ClaimID, r.Staker, r.Amount.String(), r.Status})
		}
		return nil
	},
	"trail": func(ctx context.Context, t table.Writer, a api.Analytics, _ queryParams) error {
		rows, err := a.TransactionTrail(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Month", "Main Gov", "State Head", "Deputy", "Vendor"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Month.UTC().Format("2006-01"), r.MainGov.String(), r.StateHead.String(), r.Deputy.String(), r.Vendor.String()})
		}
		return nil
	},
	"fraud-alerts": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		rows, err := a.FraudAlerts(ctx, p.Limit)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Time", "Claim", "Alert"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Time.UTC().Format(timeLayout), r.ClaimID, r.Message})
		}
		return nil
	},
	"department-stats": func(ctx context.Context, t table.Writer, a api.Analytics, p queryParams) error {
		department, err := addressFlag(p.Department, flags.DepartmentFlag.Name)
		if err != nil {
			return err
		}
		stats, err := a.DepartmentClaimStats(ctx, department)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Department", "Claims", "Avg Anomaly Score", "Total Amount", "Last Claim"})
		t.AppendRow(table.Row{stats.DepartmentAddress, stats.TotalClaims, fmt.Sprintf("%.2f", stats.AvgAnomalyScore), stats.TotalAmount.String(), stats.LastClaimAt.UTC().Format(timeLayout)})
		return nil
	},
}

func queryNames() []string {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runNamedQuery(ctx context.Context, out io.Writer, a api.Analytics, name string, p queryParams) error {
	fn, ok := queries[name]
	if !ok {
		return fmt.Errorf("unknown query %q, one of %v", name, queryNames())
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	if err := fn(ctx, t, a, p); err != nil {
		return err
	}
	if t.Length() == 0 {
		fmt.Fprintln(out, "No rows.")
		return nil
	}
	t.Render()
	return nil
}

func renderFlow(out io.Writer, flow *tracing.PaymentFlow) {
	fmt.Fprintf(out, "Payment flow of %s from %s (total %s wei)\n", flow.TxHash, flow.Origin, flow.TotalValue.ToInt())
	if len(flow.Participants) == 0 {
		fmt.Fprintln(out, "No value-carrying calls.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"#", "Address", "Value (wei)", "Depth", "Method"})
	for i, p := range flow.Participants {
		t.AppendRow(table.Row{i + 1, p.Address.Hex(), p.Value.ToInt().String(), p.Depth, p.MethodID})
	}
	t.Render()
}

func addressFlag(raw string, name string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, errs.NewValidation(name, "a wallet address is required")
	}
	return common.HexToAddress(raw), nil
}
