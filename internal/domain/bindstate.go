package domain

// BindState 行情 API 的连接授权状态；每个 API 凭证只有一个实例
type BindState int

const (
	BindUnbound BindState = iota
	BindBinding
	BindBound
	BindCooldown
	BindInvalid
)

func (s BindState) String() string {
	switch s {
	case BindUnbound:
		return "Unbound"
	case BindBinding:
		return "Binding"
	case BindBound:
		return "Bound"
	case BindCooldown:
		return "Cooldown"
	case BindInvalid:
		return "Invalid"
	}
	return "Unknown"
}
