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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Type registry related
	ErrRegistrationConflict = newSeriluxError("type name already registered with a different type", 100, false)
	ErrConstructionContract = newSeriluxError("type is not constructable with zero arguments", 101, false)
	ErrTypeNotFound         = newSeriluxError("type not found in registry", 102, false)

	// Serialization related
	ErrDepthLimitExceeded = newSeriluxError("depth limit exceeded", 200, false)
	ErrFieldInvalid       = newSeriluxError("field cannot be serialized", 201, false)
	ErrValueUnsupported   = newSeriluxError("value outside the supported set", 202, false)
	ErrMethodOwnership    = newSeriluxError("method is bound to a different object", 203, false)

	// Deserialization related
	ErrFieldUnknown            = newSeriluxError("field not declared by target type", 300, false)
	ErrObjectReferenceMissing  = newSeriluxError("referenced object not found in registry", 301, false)
	ErrObjectAlreadyRegistered = newSeriluxError("object id already bound to another instance", 302, false)
	ErrNodeMalformed           = newSeriluxError("node structure malformed", 303, false)

	// Callable related
	ErrCallableInvalid = newSeriluxError("callable cannot be encoded or bound", 400, false)
	ErrSymbolUnknown   = newSeriluxError("symbol not found", 401, false)

	// Expression related
	ErrExpressionUnsafe = newSeriluxError("expression rejected by safety validation", 500, false)
	ErrExpressionSyntax = newSeriluxError("expression syntax error", 501, false)
	ErrExpressionEval   = newSeriluxError("expression evaluation failed", 502, false)

	// Snapshot related
	ErrSnapshotCorrupt = newSeriluxError("snapshot data corrupt", 600, false)
	ErrSnapshotVersion = newSeriluxError("snapshot format version incompatible", 601, false)

	// Parameter related
	ErrParameterInvalid = newSeriluxError("invalid parameter", 700, false)
	ErrParameterMissing = newSeriluxError("missing parameter", 701, false)

	// IO related
	ErrIoFailed = newSeriluxError("IO failed", 800, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to seriluxError
	errUnexpected = newSeriluxError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*seriluxError)

func WithDetail(detail string) errorOption {
	return func(err *seriluxError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *seriluxError) {
		err.errType = etype
	}
}

type seriluxError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newSeriluxError(msg string, code int32, retriable bool, options ...errorOption) seriluxError {
	err := seriluxError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e seriluxError) code() int32 {
	return e.errCode
}

func (e seriluxError) Error() string {
	return e.msg
}

func (e seriluxError) Detail() string {
	return e.detail
}

func (e seriluxError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(seriluxError); ok {
		return e.errCode == cause.errCode
	}
	return false
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
