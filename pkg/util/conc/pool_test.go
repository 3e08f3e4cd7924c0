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

package conc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	pool := NewPool[int](2, WithPreAlloc(true))
	defer pool.Release()

	futures := make([]*Future[int], 0, 8)
	for i := 0; i < 8; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (int, error) {
			return i * 2, nil
		}))
	}

	assert.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i*2, f.Value())
	}
	assert.Equal(t, 2, pool.Cap())
}

func TestPoolError(t *testing.T) {
	pool := NewPool[struct{}](1)
	defer pool.Release()

	boom := errors.New("boom")
	ok := pool.Submit(func() (struct{}, error) { return struct{}{}, nil })
	bad := pool.Submit(func() (struct{}, error) { return struct{}{}, boom })

	assert.True(t, ok.OK())
	assert.ErrorIs(t, bad.Err(), boom)
	assert.ErrorIs(t, AwaitAll(ok, bad), boom)
}

func TestGo(t *testing.T) {
	f := Go(func() (string, error) {
		return "done", nil
	})
	<-f.Inner()
	v, err := f.Await()
	assert.NoError(t, err)
	assert.Equal(t, "done", v)
}
