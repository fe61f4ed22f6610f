package instrument

import "time"

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock 默认使用 UTC 时间。
var SystemClock Clock = systemClock{}

// FixedClock 返回固定时间，测试与回放使用。
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
