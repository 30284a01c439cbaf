package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"tickmill/internal/ledger"
)

var csvHeader = []string{
	"timestamp", "strategy", "symbol", "side", "qty", "price",
	"cash_after", "position_after", "label", "score", "prob_buy", "model_version",
}

// WriteCSV 把交易记录导出为 CSV 文件，列顺序与历史导出格式保持一致。
func WriteCSV(path string, trades []ledger.TradeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建交易导出文件失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			strconv.FormatInt(t.Timestamp.Unix(), 10),
			t.Strategy,
			t.Symbol,
			t.Side,
			strconv.FormatInt(t.Quantity, 10),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.CashAfter, 'f', -1, 64),
			strconv.FormatInt(t.PositionAfter, 10),
			strconv.Itoa(int(t.Label)),
			strconv.FormatFloat(t.Score, 'f', -1, 64),
			strconv.FormatFloat(t.ProbBuy, 'f', -1, 64),
			t.ModelVersion,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
