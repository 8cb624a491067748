// Package logging はzapを使用した構造化ログを提供する。
//
// 全サービスはこのパッケージのLoggerを通してログを出力する。
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level はログレベル。
type Level string

const (
	// LevelDebug はデバッグレベル。
	LevelDebug Level = "debug"
	// LevelInfo は情報レベル。
	LevelInfo Level = "info"
	// LevelWarn は警告レベル。
	LevelWarn Level = "warn"
	// LevelError はエラーレベル。
	LevelError Level = "error"
)

// Format はログの出力形式。
type Format string

const (
	// FormatJSON はJSON形式で出力する。
	FormatJSON Format = "json"
	// FormatConsole は人が読みやすい形式で出力する。
	FormatConsole Format = "console"
)

// Config はLoggerの設定。
type Config struct {
	// Level は出力する最小のログレベル。
	Level Level `yaml:"level"`
	// Format は出力形式。
	Format Format `yaml:"format"`
	// Output は出力先（stdout、stderr、またはファイルパス）。
	Output string `yaml:"output"`
	// Development は開発モード（色付きのレベル表示など）を有効にする。
	Development bool `yaml:"development"`
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: "stdout",
	}
}

// Logger はzap.Loggerのラッパー。
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New は設定からLoggerを生成する。
func New(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case FormatConsole:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{
		Logger: zap.New(zapcore.NewCore(encoder, output, level), opts...),
		level:  level,
	}, nil
}

// NewNop は何も出力しないLoggerを返す。テストで使用する。
func NewNop() *Logger {
	return &Logger{
		Logger: zap.NewNop(),
		level:  zap.NewAtomicLevel(),
	}
}

// NewWithCore は任意のzapcore.Coreに出力するLoggerを返す。
// テストでzaptest/observerを使ってログの内容を検証する場合に使用する。
// ログレベルはcoreの設定に従い、SetLevelは効果を持たない。
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{
		Logger: zap.New(core),
		level:  zap.NewAtomicLevel(),
	}
}

// openOutput は出力先を開く。
func openOutput(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		//nolint:gosec // ログ収集ツールから読めるように0o644とする
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("ログ出力先のオープンに失敗: %w", err)
		}
		return zapcore.AddSync(file), nil
	}
}

// Named は名前付きの子Loggerを返す。
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), level: l.level}
}

// With はフィールドを付与した子Loggerを返す。
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

// SetLevel はログレベルを動的に変更する。
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(parseLevel(level))
}

// ParseLevel は文字列をLevelに変換する。未知の値はLevelInfoになる。
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// parseLevel はLevelをzapcore.Levelに変換する。
func parseLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
