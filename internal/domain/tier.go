package domain

import (
	"encoding/json"
	"fmt"
)

// Tier 候选分级：S > A > B > C
type Tier int

const (
	TierC Tier = iota + 1 // 观察
	TierB                 // 稳健
	TierA                 // 动量
	TierS                 // 现金牛
)

// Weight 排序权重，S=4 ... C=1
func (t Tier) Weight() int { return int(t) }

func (t Tier) String() string {
	switch t {
	case TierS:
		return "S"
	case TierA:
		return "A"
	case TierB:
		return "B"
	case TierC:
		return "C"
	}
	return "?"
}

// ParseTier 解析 "S"/"A"/"B"/"C"
func ParseTier(s string) (Tier, error) {
	switch s {
	case "S":
		return TierS, nil
	case "A":
		return TierA, nil
	case "B":
		return TierB, nil
	case "C":
		return TierC, nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
