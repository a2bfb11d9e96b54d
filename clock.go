package iodispatch

import "time"

type Clock interface {
	Millis() int64
}

type systemClock struct{}

var SystemClock Clock = systemClock{}

func (systemClock) Millis() int64 {
	return time.Now().UnixMilli()
}
