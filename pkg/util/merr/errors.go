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

package merr

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Host communication related
	// 包装除“队列为空”之外的所有 LGMP 原语错误。
	ErrLGMPCommunication = newKVMFRError("encountered error during host communication", 100, false)
	ErrShmDevice         = newKVMFRError("failed to open shm device", 101, false)
	// 持有 LGMP 客户端锁的调用方在临界区内 panic，之后该连接不可再用。
	ErrClientLockPoisoned = newKVMFRError("a participant panicked whilst holding lock on LGMP client", 102, false)
	ErrVersionMismatch    = newKVMFRError("the host application is not compatible with this client", 103, false)

	// Message related
	ErrFrameMessageTooSmall  = newKVMFRError("message received from host on frame channel was smaller than expected", 104, false)
	ErrCursorMessageTooSmall = newKVMFRError("message received from host on cursor channel was smaller than expected", 105, false)

	// Session related
	ErrChannelBusy               = newKVMFRError("channel is held by a live update handle", 106, true)
	ErrSessionAlreadyInitialized = newKVMFRError("session already initialized", 107, false)
	ErrUpdateReleased            = newKVMFRError("update handle already released", 108, false)

	// Parameter related
	ErrParameterInvalid = newKVMFRError("invalid parameter", 1100, false)
	ErrParameterMissing = newKVMFRError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to kvmfrError
	errUnexpected = newKVMFRError("unexpected error", (1<<16)-1, false)
)

type kvmfrError struct {
	msg       string
	retriable bool
	errCode   int32
}

func newKVMFRError(msg string, code int32, retriable bool) kvmfrError {
	return kvmfrError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e kvmfrError) code() int32 {
	return e.errCode
}

func (e kvmfrError) Error() string {
	return e.msg
}

func (e kvmfrError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(kvmfrError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

// VersionMismatchError 表示宿主注册元数据与本客户端的 KVMFR 协议不兼容。
//
// Expected 为客户端期望的版本号；Actual 仅在元数据长度正确、可以读出版本字段时有意义。
type VersionMismatchError struct {
	Expected uint32
	Actual   uint32
	Reason   string

	leaf error
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s; expected KVMFR version %d (%s)", ErrVersionMismatch.msg, e.Expected, e.Reason)
}

func (e *VersionMismatchError) Unwrap() error {
	return e.leaf
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
