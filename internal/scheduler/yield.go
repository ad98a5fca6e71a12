package scheduler

import "runtime"

func goschedYield() {
	runtime.Gosched()
}
