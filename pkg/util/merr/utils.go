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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case kvmfrError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRetryableErr 判断错误是否可由调用方稍后重试。
// 目前只有 ErrChannelBusy 属于此类。
func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(kvmfrError); ok {
		return err.retriable
	}

	return false
}

// Host communication related
func WrapErrLGMPCommunication(err error, op string, msg ...string) error {
	if err == nil {
		return nil
	}
	wrapped := wrapFields(ErrLGMPCommunication, value("op", op))
	if len(msg) > 0 {
		wrapped = errors.Wrap(wrapped, strings.Join(msg, "->"))
	}
	// 原语错误放在首位，保证 errors.Is 仍能命中底层错误，而 Code 命中 leaf。
	return Combine(err, wrapped)
}

func WrapErrShmDevice(path string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrShmDevice, err.Error(), value("path", path))
}

func WrapErrShmDeviceReason(path string, reason string) error {
	return wrapFieldsWithDesc(ErrShmDevice, reason, value("path", path))
}

func WrapErrClientLockPoisoned(lockName string, msg ...string) error {
	err := wrapFields(ErrClientLockPoisoned, value("lock", lockName))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrVersionMismatch 构造携带期望版本号的版本不匹配错误。
func WrapErrVersionMismatch(expected, actual uint32, reason string) error {
	return &VersionMismatchError{
		Expected: expected,
		Actual:   actual,
		Reason:   reason,
		leaf:     wrapFieldsWithDesc(ErrVersionMismatch, reason, value("expected", expected)),
	}
}

// ExpectedVersion 从错误链中提取期望的 KVMFR 版本号。
func ExpectedVersion(err error) (uint32, bool) {
	var vme *VersionMismatchError
	if errors.As(err, &vme) {
		return vme.Expected, true
	}
	return 0, false
}

// Message related
func WrapErrFrameMessageTooSmall(expected, actual int) error {
	return wrapFields(ErrFrameMessageTooSmall, value("expected", expected), value("actual", actual))
}

func WrapErrCursorMessageTooSmall(expected, actual int) error {
	return wrapFields(ErrCursorMessageTooSmall, value("expected", expected), value("actual", actual))
}

// Session related
func WrapErrChannelBusy(channel string, msg ...string) error {
	err := wrapFields(ErrChannelBusy, value("channel", channel))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionAlreadyInitialized(clientID uint32) error {
	return wrapFields(ErrSessionAlreadyInitialized, value("clientID", clientID))
}

func WrapErrUpdateReleased(channel string) error {
	return wrapFields(ErrUpdateReleased, value("channel", channel))
}

// Parameter related
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(format string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, format, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err kvmfrError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	return err
}

func wrapFieldsWithDesc(err kvmfrError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
