package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

type CodeMsg struct {
	Code int    // 错误码
	Msg  string // 错误消息
	Err  error  // 原始错误
}

// 实现 error 接口
func (e *CodeMsg) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, msg=%s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("code=%d, msg=%s", e.Code, e.Msg)
}

func (e *CodeMsg) Unwrap() error { return e.Err }

// New 构造函数
func New(code int, msg string) error {
	return &CodeMsg{Code: code, Msg: msg}
}

// Newf 带格式化消息的构造函数
func Newf(code int, format string, args ...any) error {
	return &CodeMsg{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 包装原始错误，msg 为空时使用错误码的默认描述
func Wrap(code int, msg string, err error) error {
	if msg == "" {
		msg = xerr.Text(code)
	}
	return &CodeMsg{Code: code, Msg: msg, Err: err}
}

// CodeOf 返回错误链上第一个 CodeMsg 的错误码，没有则返回 0
func CodeOf(err error) int {
	var cm *CodeMsg
	if stderrors.As(err, &cm) {
		return cm.Code
	}
	return 0
}

// IsCode 判断错误树上是否带有指定错误码，errors.Join 的每个分支都会检查
func IsCode(err error, code int) bool {
	if err == nil {
		return false
	}
	if cm, ok := err.(*CodeMsg); ok && cm.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return IsCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsCode(e, code) {
				return true
			}
		}
	}
	return false
}
