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

package lock

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

func TestPoisonMutexDo(t *testing.T) {
	m := NewPoisonMutex("test")

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do("inc", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, counter)
	assert.False(t, m.Poisoned())

	boom := errors.New("boom")
	assert.ErrorIs(t, m.Do("err", func() error { return boom }), boom)
	assert.False(t, m.Poisoned(), "returning an error must not poison the lock")
}

func TestPoisonMutexPanic(t *testing.T) {
	m := NewPoisonMutex("test")

	assert.Panics(t, func() {
		_ = m.Do("panic", func() error {
			panic("mid-update")
		})
	})
	assert.True(t, m.Poisoned())

	called := false
	err := m.Do("after", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, merr.ErrClientLockPoisoned)
	assert.False(t, called)
	assert.Equal(t, "test(poisoned=true)", m.String())
}

func TestPoisonMutexTeardown(t *testing.T) {
	m := NewPoisonMutex("test")

	called := 0
	assert.NoError(t, m.Teardown("close", func() error {
		called++
		return nil
	}))

	assert.Panics(t, func() {
		_ = m.Do("panic", func() error {
			panic("mid-update")
		})
	})

	boom := errors.New("close failed")
	err := m.Teardown("close", func() error {
		called++
		return boom
	})
	assert.Equal(t, 2, called)
	assert.ErrorIs(t, err, merr.ErrClientLockPoisoned)
	assert.ErrorIs(t, err, boom)
	assert.True(t, m.Poisoned())
}
