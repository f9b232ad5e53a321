package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

func WriteLedgerCSV(path string, ledger []LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := EncodeLedgerCSV(f, ledger); err != nil {
		return err
	}
	return f.Close()
}

// EncodeLedgerCSV writes the ledger with a header row.
func EncodeLedgerCSV(out io.Writer, ledger []LedgerRow) error {
	w := csv.NewWriter(out)

	header := []string{
		"index",
		"time",
		"demand_kwh",
		"pv_kwh",
		"grid_import_kwh",
		"grid_export_kwh",
		"charge_kwh",
		"discharge_kwh",
		"soc_start_kwh",
		"soc_end_kwh",
		"action",
		"cost",
		"cum_cost",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range ledger {
		row := []string{
			strconv.Itoa(r.Index),
			fmtTime(r.Time),
			fmtFloat(r.DemandKWh),
			fmtFloat(r.PVKWh),
			fmtFloat(r.GridImportKWh),
			fmtFloat(r.GridExportKWh),
			fmtFloat(r.ChargeKWh),
			fmtFloat(r.DischargeKWh),
			fmtFloat(r.SOCStart),
			fmtFloat(r.SOCEnd),
			string(r.Action),
			fmtFloat(r.Cost),
			fmtFloat(r.CumCost),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
