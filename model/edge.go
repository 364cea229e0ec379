package model

// Edge 对应两个节点之间的一条通路
type Edge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Dist  float64  `json:"dist"`  // 距离 (米), 为 0 时按节点坐标计算
	Modes []string `json:"modes"` // 原始通行方式列表: ["walk", "elevator"]
	Desc  string   `json:"desc,omitempty"`

	// 加载后计算, 用于算法中快速判断通行权限
	ModeMask int `json:"-"`
}

// 通行方式的二进制位 (Bitmask)
const (
	ModeNone      = 0
	ModeWalk      = 1 << 0 // 平地步行
	ModeSlope     = 1 << 1 // 坡道
	ModeStairs    = 1 << 2 // 楼梯
	ModeEscalator = 1 << 3 // 自动扶梯 (单向)
	ModeElevator  = 1 << 4 // 电梯
)

// ModeAll 所有通行方式
const ModeAll = ModeWalk | ModeSlope | ModeStairs | ModeEscalator | ModeElevator

// BidirectionalMask 自动补反向边的通行方式, 扶梯是单向的
const BidirectionalMask = ModeWalk | ModeSlope | ModeStairs | ModeElevator

// 各通行方式的平均速度 (米/秒), 以视障用户步行速度为基准
const (
	SpeedWalk      = 1.0
	SpeedSlope     = 0.8
	SpeedStairs    = 0.4
	SpeedEscalator = 0.5
	SpeedElevator  = 1.0 // 按楼层高度换算后的等效速度
)

// 换乘到某种通行方式时的等待/准备时间 (秒)
const (
	WaitTimeWalk      = 0
	WaitTimeSlope     = 0
	WaitTimeStairs    = 5
	WaitTimeEscalator = 10
	WaitTimeElevator  = 45
)

// ParseModes 将字符串数组转换为位掩码
// 例如: ["walk", "stairs"] -> 1 | 4 = 5
func ParseModes(modes []string) int {
	mask := 0
	for _, m := range modes {
		mask |= GetModeMask(m)
	}
	return mask
}

// GetModeMask 获取单个通行方式的位掩码
func GetModeMask(mode string) int {
	switch mode {
	case "walk":
		return ModeWalk
	case "slope":
		return ModeSlope
	case "stairs":
		return ModeStairs
	case "escalator":
		return ModeEscalator
	case "elevator":
		return ModeElevator
	default:
		return 0
	}
}

// GetModeSpeed 获取指定通行方式的速度 (米/秒)
func GetModeSpeed(mode string) float64 {
	switch mode {
	case "slope":
		return SpeedSlope
	case "stairs":
		return SpeedStairs
	case "escalator":
		return SpeedEscalator
	case "elevator":
		return SpeedElevator
	default:
		return SpeedWalk
	}
}

// GetModeWaitTime 获取指定通行方式的等待时间 (秒)
func GetModeWaitTime(mode string) float64 {
	switch mode {
	case "stairs":
		return WaitTimeStairs
	case "escalator":
		return WaitTimeEscalator
	case "elevator":
		return WaitTimeElevator
	default:
		return 0
	}
}

// FilterModesByMask 根据用户允许的 modeMask 过滤边支持的通行方式
func FilterModesByMask(edgeModes []string, userModeMask int) []string {
	var filtered []string
	for _, mode := range edgeModes {
		if GetModeMask(mode)&userModeMask != 0 {
			filtered = append(filtered, mode)
		}
	}
	return filtered
}

// BidirectionalModes 从模式列表中提取可双向通行的模式
func BidirectionalModes(modes []string) []string {
	var out []string
	for _, m := range modes {
		if GetModeMask(m)&BidirectionalMask != 0 {
			out = append(out, m)
		}
	}
	return out
}

// EstimateSegmentTime 估算路段时间, 在切换通行方式时计入等待
// 返回预计时间 (秒) 和实际使用的通行方式
func EstimateSegmentTime(distance float64, availableModes []string, prevMode string) (time float64, usedMode string) {
	if len(availableModes) == 0 {
		return distance / SpeedWalk, "walk"
	}

	bestTime := -1.0
	bestMode := ""
	for _, mode := range availableModes {
		total := distance / GetModeSpeed(mode)
		// 连续乘同一部电梯/扶梯不重复等待
		if prevMode != mode {
			total += GetModeWaitTime(mode)
		}
		if bestTime < 0 || total < bestTime {
			bestTime = total
			bestMode = mode
		}
	}
	return bestTime, bestMode
}
