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
	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/kvmfr-client-go/pkg/log"
)

type poolOption struct {
	preAlloc bool
}

func defaultPoolOption() *poolOption {
	return &poolOption{}
}

func (opt *poolOption) antsOptions() []ants.Option {
	return []ants.Option{
		ants.WithPreAlloc(opt.preAlloc),
		// ants 默认吞掉 panic，这里记录后继续抛出。
		ants.WithPanicHandler(func(v any) {
			log.Error("conc pool task panicked", zap.Any("panic", v))
			panic(v)
		}),
	}
}

// PoolOption 用于配置协程池。
type PoolOption func(opt *poolOption)

// WithPreAlloc 预先分配全部 worker，适合容量小且常驻的池。
func WithPreAlloc(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.preAlloc = v
	}
}
