package domain

// Metrics 过滤过程中计算出的派生指标
type Metrics struct {
	AnnualYield     float64 // 年化收益率（小数）
	DailyRent       float64
	LeaseRatio      float64 // 出租数 / 在售数
	Volatility      float64 // 变异系数
	VolatilityKnown bool
	Premium         float64 // (本地价 - 参考价) / 参考价
	PremiumKnown    bool
	Trend7D         float64
	Trend90D        float64
	RelativeHeat    float64 // 出租数 / 批次均值
}

// StageMark 记录某个过滤阶段通过时贡献的指标，用于审计
type StageMark struct {
	Stage  string
	Values map[string]float64
}

// OutcomeKind 候选结果类型
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeRejected
	OutcomeAccepted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRejected:
		return "rejected"
	case OutcomeAccepted:
		return "accepted"
	}
	return "pending"
}

// Outcome 候选结果：rejected(stage, reason) 或 accepted(tier)
type Outcome struct {
	Kind   OutcomeKind
	Stage  string // 拒绝发生的阶段
	Reason string // 可读的拒绝原因
	Tier   Tier   // 仅 accepted 且已分级时有效
}

// Candidate 带派生指标的行情记录。所有修改方法都返回新值，旧值保持不变。
type Candidate struct {
	Record       RawMarketRecord
	LeasedCount  int // 解析后的出租数（排行榜或详情）
	OfferedCount int
	Metrics      Metrics
	Marks        []StageMark
	Outcome      Outcome
}

// NewCandidate 从原始记录创建待处理候选
func NewCandidate(r RawMarketRecord) Candidate {
	c := Candidate{Record: r, OfferedCount: r.OfferedCount}
	if r.HasLeasedCount {
		c.LeasedCount = r.LeasedCount
	}
	return c
}

func (c Candidate) clone() Candidate {
	out := c
	if c.Marks != nil {
		out.Marks = make([]StageMark, len(c.Marks))
		for i, m := range c.Marks {
			vals := make(map[string]float64, len(m.Values))
			for k, v := range m.Values {
				vals[k] = v
			}
			out.Marks[i] = StageMark{Stage: m.Stage, Values: vals}
		}
	}
	return out
}

// WithMetrics 返回替换了指标的新候选
func (c Candidate) WithMetrics(m Metrics) Candidate {
	out := c.clone()
	out.Metrics = m
	return out
}

// WithCounts 返回替换了出租/在售数量的新候选
func (c Candidate) WithCounts(leased, offered int) Candidate {
	out := c.clone()
	out.LeasedCount = leased
	out.OfferedCount = offered
	return out
}

// Pass 记录通过某个阶段
func (c Candidate) Pass(stage string, values map[string]float64) Candidate {
	out := c.clone()
	vals := make(map[string]float64, len(values))
	for k, v := range values {
		vals[k] = v
	}
	out.Marks = append(out.Marks, StageMark{Stage: stage, Values: vals})
	return out
}

// Reject 返回被拒绝的候选
func (c Candidate) Reject(stage, reason string) Candidate {
	out := c.clone()
	out.Outcome = Outcome{Kind: OutcomeRejected, Stage: stage, Reason: reason}
	return out
}

// Accept 返回通过全部阶段、尚未分级的候选
func (c Candidate) Accept() Candidate {
	out := c.clone()
	out.Outcome = Outcome{Kind: OutcomeAccepted}
	return out
}

// WithTier 返回带分级结果的新候选
func (c Candidate) WithTier(t Tier, relativeHeat float64) Candidate {
	out := c.clone()
	out.Metrics.RelativeHeat = relativeHeat
	out.Outcome = Outcome{Kind: OutcomeAccepted, Tier: t}
	return out
}

func (c Candidate) Accepted() bool { return c.Outcome.Kind == OutcomeAccepted }

func (c Candidate) Rejected() bool { return c.Outcome.Kind == OutcomeRejected }

// PassedStages 已通过的阶段名
func (c Candidate) PassedStages() []string {
	out := make([]string, 0, len(c.Marks))
	for _, m := range c.Marks {
		out = append(out, m.Stage)
	}
	return out
}
