package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// printf 风格接口，给只接受 Printf 的第三方库（gorm logger、nats 回调）使用

func hasFormatVerb(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if i+1 < len(s) && s[i+1] == '%' {
				i++
				continue
			}
			return true
		}
	}
	return false
}

func logf(event *zerolog.Event, format string, args ...any) {
	if event == nil {
		return
	}

	// 跳过 logf 和导出函数两层，显示实际调用位置
	event = event.CallerSkipFrame(2)

	if len(args) == 0 {
		event.Msg(strings.TrimRight(format, "\n"))
		return
	}
	if hasFormatVerb(format) {
		event.Msg(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
		return
	}

	var b strings.Builder
	b.WriteString(format)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(a))
	}
	event.Msg(b.String())
}

func Printf(format string, v ...any) {
	logf(log.Logger.Info(), format, v...)
}

func Infof(format string, v ...any) {
	logf(log.Logger.Info(), format, v...)
}

func Debugf(format string, v ...any) {
	logf(log.Logger.Debug(), format, v...)
}

func Warnf(format string, v ...any) {
	logf(log.Logger.Warn(), format, v...)
}

func Errorf(format string, v ...any) {
	logf(log.Logger.Error(), format, v...)
}
