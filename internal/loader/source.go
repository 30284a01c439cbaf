package loader

import (
	"context"

	"tickmill/internal/market"
)

// Source 产出一段有限、按时间排序的 tick 序列。
// 核心流水线不关心数据来自哪里，只负责把序列灌进事件队列。
type Source interface {
	Load(ctx context.Context) ([]market.Tick, error)
	Name() string
}
