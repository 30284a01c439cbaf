package scorer

// Label 是打分服务输出的类别：0=SELL，1=BUY，其余按 HOLD 处理。
type Label int

const (
	LabelSell Label = 0
	LabelBuy  Label = 1
	LabelHold Label = 2
)

func (l Label) String() string {
	switch l {
	case LabelSell:
		return "SELL"
	case LabelBuy:
		return "BUY"
	case LabelHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Prediction 是一次打分调用的结果。网络错误、非 2xx、响应不可解析
// 统一折叠为 OK=false + Err 原因，调用方据此跳过本 tick 的交易。
type Prediction struct {
	Label         Label     `json:"label"`
	Probabilities []float64 `json:"probabilities"`
	Score         float64   `json:"score"`
	ModelVersion  string    `json:"model_version"`
	OK            bool      `json:"ok"`
	Err           string    `json:"err,omitempty"`
}

// ProbBuy 返回 BUY 类别的概率，越界时返回 0。
func (p Prediction) ProbBuy() float64 {
	if int(LabelBuy) < len(p.Probabilities) {
		return p.Probabilities[LabelBuy]
	}
	return 0
}

func failure(reason string) Prediction {
	return Prediction{OK: false, Err: reason}
}
