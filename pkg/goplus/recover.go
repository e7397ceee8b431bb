package goplus

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/utrading/utrading-price-insight/pkg/logger"
)

const maxPanicDepth = 32

// Recover 捕获 panic 并连同调用栈写入 error 日志
// 必须直接 defer 调用
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	logger.Error().
		Str("panic", fmt.Sprint(r)).
		Str("callers", callers(3)).
		Msg("recovered from panic")
}

// SafeCall 执行 fn，panic 转为日志，返回是否正常结束
// 用于回调（观察者、消息处理器），单个回调失败不影响其他回调
func SafeCall(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("callers", callers(3)).
				Msg("recovered from callback panic")
			ok = false
		}
	}()
	fn()
	return true
}

func callers(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+maxPanicDepth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		sb.WriteString(fmt.Sprintf("%s:%d\n", file, line))
	}
	return sb.String()
}
