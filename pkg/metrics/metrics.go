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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// kvmfrNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	kvmfrNamespace = "kvmfr"

	channelSubsystem = "channel"
	sessionSubsystem = "session"

	// 以下为当前使用的通用标签名。
	channelLabelName = "channel"
	resultLabelName  = "result"

	lockName   = "lock_name"
	lockSource = "lock_source"
	lockType   = "lock_type"
	lockOp     = "lock_op"

	SuccessLabel = "success"
	FailLabel    = "fail"
)

var (
	// ChannelFastForwards 统计为避免宿主超时而跳到最新消息的次数。
	ChannelFastForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: kvmfrNamespace,
			Subsystem: channelSubsystem,
			Name:      "fast_forward_total",
			Help:      "number of times a channel skipped to its newest message",
		}, []string{channelLabelName})

	ChannelEmptyPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: kvmfrNamespace,
			Subsystem: channelSubsystem,
			Name:      "empty_total",
			Help:      "number of queue-empty responses observed on a channel",
		}, []string{channelLabelName})

	ChannelUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: kvmfrNamespace,
			Subsystem: channelSubsystem,
			Name:      "update_total",
			Help:      "number of messages popped from a channel",
		}, []string{channelLabelName})

	// ChannelHeartbeatAge 为每次 tick 时距离上次观察到空队列的时间，单位为毫秒。
	ChannelHeartbeatAge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: kvmfrNamespace,
			Subsystem: channelSubsystem,
			Name:      "heartbeat_age_ms",
			Help:      "time since the channel was last observed empty",
		}, []string{channelLabelName})

	SessionInits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: kvmfrNamespace,
			Subsystem: sessionSubsystem,
			Name:      "init_total",
			Help:      "number of session init attempts",
		}, []string{resultLabelName})

	// SessionReconnects 统计会话失效后重新建立连接的次数。
	SessionReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: kvmfrNamespace,
			Subsystem: sessionSubsystem,
			Name:      "reconnect_total",
			Help:      "number of times the supervisor re-established a session",
		})

	LockCosts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: kvmfrNamespace,
			Name:      "lock_time_cost",
			Help:      "time cost for various kinds of locks",
		}, []string{
			lockName,
			lockSource,
			lockType,
			lockOp,
		})

	metricRegisterer prometheus.Registerer
	registerOnce     sync.Once
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ChannelFastForwards)
		r.MustRegister(ChannelEmptyPolls)
		r.MustRegister(ChannelUpdates)
		r.MustRegister(ChannelHeartbeatAge)
		r.MustRegister(SessionInits)
		r.MustRegister(SessionReconnects)
		r.MustRegister(LockCosts)
		metricRegisterer = r
	})
}
