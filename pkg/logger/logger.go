package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu      sync.Mutex
	writers    map[string]*lumberjack.Logger
	closed     chan struct{}
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// initLogger 初始化全局 logger，可重复调用（测试中每个用例重建一次）
func initLogger(config Config) error {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(config.Level))

	if config.LevelFiles.IsEmpty() {
		config.LevelFiles = LevelFiles{{Level: INFO, Path: "logs/info.log"}}
	}

	for _, filePath := range config.LevelFiles.GetPaths() {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return err
		}
	}

	Close()

	logMu.Lock()
	closed = make(chan struct{})
	stop := closed
	logMu.Unlock()

	setWriter(config)

	go rotateDaily(config, stop)

	return nil
}

func setWriter(config Config) {
	// 已配置文件的等级位掩码，用于决定未配置等级落到哪个文件
	var configuredLevels uint8
	for _, entry := range config.LevelFiles {
		configuredLevels |= 1 << parseLevel(entry.Level)
	}

	outputs := make([]io.Writer, 0, len(config.LevelFiles)+1)
	newWriters := make(map[string]*lumberjack.Logger, len(config.LevelFiles))

	for _, entry := range config.LevelFiles {
		lj := &lumberjack.Logger{
			Filename:   entry.Path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		newWriters[entry.Level] = lj

		outputs = append(outputs, &levelFilterWriter{
			level:            parseLevel(entry.Level),
			configuredLevels: configuredLevels,
			Writer: &zerolog.ConsoleWriter{
				Out:        lj,
				TimeFormat: TimeFormat,
				NoColor:    true,
			},
		})
	}

	if config.Console {
		outputs = append(outputs, &zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: TimeFormat,
		})
	}

	logMu.Lock()
	defer logMu.Unlock()

	closeWriters()
	writers = newWriters
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(outputs...)).With().Timestamp().Caller().Logger()
}

// levelFilterWriter 只写入本文件等级的日志
// info 文件兜底未单独配置的等级，error 文件兜底未配置的 fatal
type levelFilterWriter struct {
	level            zerolog.Level
	configuredLevels uint8
	io.Writer
}

func (w *levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level == w.level {
		return w.Writer.Write(p)
	}

	switch w.level {
	case zerolog.InfoLevel:
		if level >= zerolog.DebugLevel && level <= zerolog.PanicLevel && w.configuredLevels&(1<<level) == 0 {
			return w.Writer.Write(p)
		}
	case zerolog.ErrorLevel:
		if level == zerolog.FatalLevel && w.configuredLevels&(1<<level) == 0 {
			return w.Writer.Write(p)
		}
	}
	return len(p), nil
}

func closeWriters() {
	for levelName, lj := range writers {
		if err := lj.Close(); err != nil {
			log.Logger.Err(err).Str("level", levelName).Msg("failed to close log writer")
		}
	}
	writers = nil
}

// rotateDaily 每天零点轮转所有文件
func rotateDaily(config Config, stop <-chan struct{}) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		logMu.Lock()
		for levelName, lj := range writers {
			if err := lj.Rotate(); err != nil {
				log.Logger.Err(err).Str("level", levelName).Msg("failed to rotate log file")
			}
		}
		logMu.Unlock()
		log.Logger.Info().Str("date", time.Now().Format(DateFormat)).Msg("log files rotated")
	}
}

// L 返回全局 logger
func L() zerolog.Logger {
	return log.Logger
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

// Err 直接记录错误，err 为 nil 时等级为 info
func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

// Close 停止日期轮转并关闭文件，可重复调用
func Close() {
	logMu.Lock()
	defer logMu.Unlock()

	if closed != nil {
		close(closed)
		closed = nil
	}
	closeWriters()
}
