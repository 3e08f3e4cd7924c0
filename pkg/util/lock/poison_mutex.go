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

// Package lock 提供带中毒检测的互斥锁。
//
// 持锁期间若临界区发生 panic，锁会被标记为中毒，此后所有加锁请求都返回
// ErrClientLockPoisoned，而不是继续在可能不一致的状态上工作。
package lock

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/kvmfr-client-go/pkg/metrics"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// PoisonMutex 为带中毒标记的互斥锁，零值不可用，需通过 NewPoisonMutex 创建。
type PoisonMutex struct {
	name     string
	mu       sync.Mutex
	poisoned atomic.Bool
}

func NewPoisonMutex(name string) *PoisonMutex {
	return &PoisonMutex{name: name}
}

// Do 在持锁状态下执行 fn。
// 锁已中毒时不执行 fn，直接返回 ErrClientLockPoisoned。
// fn 发生 panic 时锁被标记为中毒，panic 继续向上传播。
func (m *PoisonMutex) Do(source string, fn func() error) error {
	m.lock(source)
	defer m.mu.Unlock()

	if m.poisoned.Load() {
		return merr.WrapErrClientLockPoisoned(m.name, "source="+source)
	}
	return m.run(fn)
}

// Teardown 用于释放资源：即使锁已中毒也会在持锁状态下执行 fn，
// 此时返回 ErrClientLockPoisoned 与 fn 错误的组合。
func (m *PoisonMutex) Teardown(source string, fn func() error) error {
	m.lock(source)
	defer m.mu.Unlock()

	if !m.poisoned.Load() {
		return m.run(fn)
	}
	poisonErr := merr.WrapErrClientLockPoisoned(m.name, "source="+source)
	return merr.Combine(poisonErr, m.run(fn))
}

func (m *PoisonMutex) lock(source string) {
	start := time.Now()
	m.mu.Lock()
	metrics.LockCosts.WithLabelValues(m.name, source, "mutex", "lock").
		Set(float64(time.Since(start).Milliseconds()))
}

func (m *PoisonMutex) run(fn func() error) error {
	completed := false
	defer func() {
		if !completed {
			m.poisoned.Store(true)
		}
	}()
	err := fn()
	completed = true
	return err
}

// Poisoned 返回锁是否已中毒。
func (m *PoisonMutex) Poisoned() bool {
	return m.poisoned.Load()
}

func (m *PoisonMutex) String() string {
	return m.name + "(poisoned=" + strconv.FormatBool(m.poisoned.Load()) + ")"
}
