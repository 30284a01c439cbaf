package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"tickmill/internal/logger"
	"tickmill/internal/market"
)

// CSVSource 从本地 CSV 文件加载历史 tick。
// 列顺序：timestamp,symbol,open,high,low,close,adj_close,volume,bid,ask，
// 首行为表头，时间戳为 RFC3339。坏行跳过并告警，不中断加载。
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Load(ctx context.Context) ([]market.Tick, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 10

	if _, err := r.Read(); err != nil { // 表头
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	var ticks []market.Tick
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warnf("[loader] 第 %d 行无法解析，已跳过: %v", line, err)
			continue
		}
		tick, err := parseRow(row)
		if err != nil {
			logger.Warnf("[loader] 第 %d 行无效，已跳过: %v", line, err)
			continue
		}
		ticks = append(ticks, tick)
	}
	logger.Infof("[loader] 从 %s 加载 %d 条 tick", s.path, len(ticks))
	return ticks, nil
}

func parseRow(row []string) (market.Tick, error) {
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return market.Tick{}, fmt.Errorf("时间戳: %w", err)
	}
	fields := make([]float64, 0, 7)
	for _, idx := range []int{2, 3, 4, 5, 6, 8, 9} {
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return market.Tick{}, fmt.Errorf("第 %d 列: %w", idx+1, err)
		}
		fields = append(fields, v)
	}
	volume, err := strconv.ParseInt(row[7], 10, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("volume: %w", err)
	}
	return market.Tick{
		Timestamp: ts,
		Symbol:    row[1],
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		AdjClose:  fields[4],
		Volume:    volume,
		Bid:       fields[5],
		Ask:       fields[6],
	}, nil
}
