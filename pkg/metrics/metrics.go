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

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// seriluxNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	seriluxNamespace = "serilux"

	codecSubsystem      = "codec"
	expressionSubsystem = "expression"
	snapshotSubsystem   = "snapshot"

	// 以下为当前使用的通用标签名与取值。
	statusLabelName = "status"

	SuccessLabel = "success"
	FailLabel    = "fail"
)

var (
	// buckets 为耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [1 2 4 8 16 32 64 128 256 512 1024 2048 4096 8192 16384 32768 65536 1.31072e+05]
	buckets = prometheus.ExponentialBuckets(1, 2, 18)

	// sizeBuckets 为数据大小的桶划分，单位为字节。
	sizeBuckets = []float64{10000, 100000, 1000000, 100000000, 500000000, 1024000000, 2048000000, 4096000000, 10000000000, 50000000000} // 单位：字节

	CodecSerializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: seriluxNamespace,
			Subsystem: codecSubsystem,
			Name:      "serialize_total",
			Help:      "序列化调用次数，按结果统计",
		}, []string{statusLabelName})

	CodecDeserializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: seriluxNamespace,
			Subsystem: codecSubsystem,
			Name:      "deserialize_total",
			Help:      "反序列化调用次数，按结果统计",
		}, []string{statusLabelName})

	CodecSerializeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: seriluxNamespace,
			Subsystem: codecSubsystem,
			Name:      "serialize_latency",
			Help:      "序列化耗时，单位毫秒",
			Buckets:   buckets,
		})

	CodecDeserializeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: seriluxNamespace,
			Subsystem: codecSubsystem,
			Name:      "deserialize_latency",
			Help:      "反序列化耗时，单位毫秒",
			Buckets:   buckets,
		})

	CodecRegisteredTypes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: seriluxNamespace,
			Subsystem: codecSubsystem,
			Name:      "registered_types",
			Help:      "类型注册表中当前注册的类型数量",
		})

	ExpressionEvalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: seriluxNamespace,
			Subsystem: expressionSubsystem,
			Name:      "eval_total",
			Help:      "表达式求值次数，按结果统计",
		}, []string{statusLabelName})

	SnapshotWriteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: seriluxNamespace,
			Subsystem: snapshotSubsystem,
			Name:      "write_total",
			Help:      "快照写出次数，按结果统计",
		}, []string{statusLabelName})

	SnapshotReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: seriluxNamespace,
			Subsystem: snapshotSubsystem,
			Name:      "read_total",
			Help:      "快照读取次数，按结果统计",
		}, []string{statusLabelName})

	SnapshotPayloadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: seriluxNamespace,
			Subsystem: snapshotSubsystem,
			Name:      "payload_bytes",
			Help:      "快照净荷大小，单位字节",
			Buckets:   sizeBuckets,
		})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 init 函数中调用。
func Register(r prometheus.Registerer) {
	r.MustRegister(CodecSerializeTotal)
	r.MustRegister(CodecDeserializeTotal)
	r.MustRegister(CodecSerializeLatency)
	r.MustRegister(CodecDeserializeLatency)
	r.MustRegister(CodecRegisteredTypes)
	r.MustRegister(ExpressionEvalTotal)
	r.MustRegister(SnapshotWriteTotal)
	r.MustRegister(SnapshotReadTotal)
	r.MustRegister(SnapshotPayloadBytes)
	metricRegisterer = r
}
