// Package log 提供基于 zerolog 的日志工具，支持 stderr 和文件输出（lumberjack 轮转）.
//
// 全局级别随配置热重载生效:
//
//	log.Init()
//	log.Logger().Info().Msg("started")
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/photovault/pkg/configs"
)

const serviceName = "photovault"

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 初始化全局 logger，并在配置热重载时更新日志级别.
func Init() {
	initOnce.Do(initLogger)
}

func initLogger() {
	ctg := configs.GetConfig()
	logger = New(ctg.Log, ctg.Server.Debug)

	if ctg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Logger = logger

	configs.OnChange(func(c *configs.AppConfig) {
		prev := zerolog.GlobalLevel()
		if lvl := SetLevel(c.Log.Level); lvl != prev {
			logger.Info().Stringer("from", prev).Stringer("to", lvl).Msg("log level changed")
		}
	})
}

// ParseLevel 解析日志级别，空值或非法值回退为 info.
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return lvl, nil
}

// SetLevel 设置全局级别并返回生效值.
func SetLevel(s string) zerolog.Level {
	lvl, err := ParseLevel(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, defaulting to info\n", err)
	}

	zerolog.SetGlobalLevel(lvl)

	return lvl
}

// New 按配置构造 logger. 除全局级别外不修改全局状态.
func New(logCfg configs.LogConfig, debug bool) zerolog.Logger {
	SetLevel(logCfg.Level)

	ctx := zerolog.New(newWriter(logCfg)).With()
	if debug || logCfg.Caller {
		ctx = ctx.Caller()
	}

	if debug {
		ctx = ctx.Stack()
	}

	l := ctx.Timestamp().Str("service", serviceName).Logger()

	if s := sampler(logCfg.Sampling); s != nil {
		l = l.Sample(s)
	}

	return l
}

// sampler 只采样 debug 与 info，warn 以上全部输出.
func sampler(cfg configs.LogSampling) zerolog.Sampler {
	if cfg.Burst == 0 {
		return nil
	}

	period := cfg.Period
	if period <= 0 {
		period = time.Second
	}

	burst := &zerolog.BurstSampler{Burst: cfg.Burst, Period: period}

	return zerolog.LevelSampler{DebugSampler: burst, InfoSampler: burst}
}

func newWriter(logCfg configs.LogConfig) io.Writer {
	var console io.Writer = os.Stderr
	if !logCfg.JSON {
		console = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = time.Kitchen
		})
	}

	if !logCfg.EnableFile {
		return console
	}

	// 文件始终写 JSON，便于采集
	return zerolog.MultiLevelWriter(console, &lumberjack.Logger{
		Filename:   logCfg.FilePath,
		MaxSize:    logCfg.MaxSize,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAge,
		Compress:   logCfg.Compress,
	})
}

// Logger 返回全局 logger.
func Logger() *zerolog.Logger {
	initOnce.Do(initLogger)

	return &logger
}

// GinWriter 把 Gin 输出的文本行转发为 zerolog 事件.
// 去掉 [GIN-debug] 前缀，带 [WARNING] 的行至少记为 warn.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (n int, err error) {
	for line := range strings.Lines(string(p)) {
		w.writeLine(line)
	}

	return len(p), nil
}

func (w *GinWriter) writeLine(line string) {
	msg := strings.TrimSpace(line)
	msg = strings.TrimSpace(strings.TrimPrefix(msg, "[GIN-debug]"))

	if msg == "" {
		return
	}

	level := w.level

	if rest, ok := strings.CutPrefix(msg, "[WARNING]"); ok {
		msg = strings.TrimSpace(rest)
		level = max(level, zerolog.WarnLevel)
	}

	switch level {
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		w.logger.Error().Str("source", "gin").Msg(msg)
	case zerolog.WarnLevel:
		w.logger.Warn().Str("source", "gin").Msg(msg)
	case zerolog.DebugLevel, zerolog.TraceLevel:
		w.logger.Debug().Str("source", "gin").Msg(msg)
	default:
		w.logger.Info().Str("source", "gin").Msg(msg)
	}
}
