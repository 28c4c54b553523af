// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hardware

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/lk2023060901/serilux-go/pkg/log"
)

var (
	cpuNum     int
	cpuNumOnce sync.Once
)

// GetCPUNum 返回可用的逻辑 CPU 数。
// GOMAXPROCS 小于逻辑核数时以 GOMAXPROCS 为准。
func GetCPUNum() int {
	cpuNumOnce.Do(func() {
		counts, err := cpu.Counts(true)
		if err != nil || counts <= 0 {
			log.Warn("failed to get cpu counts, fallback to runtime", zap.Error(err))
			counts = runtime.NumCPU()
		}
		cpuNum = counts
	})

	cur := runtime.GOMAXPROCS(0)
	if cur > 0 && cur < cpuNum {
		return cur
	}
	return cpuNum
}

// GetCPUUsage 返回最近一次采样的 CPU 使用率（百分比）。
// 采样失败时返回 0。
func GetCPUUsage() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) != 1 {
		log.Warn("failed to get cpu usage", zap.Error(err))
		return 0
	}
	return percents[0]
}
