package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志实例
var Logger *logrus.Logger

var (
	logMu          sync.Mutex
	currentLogFile string
	currentDay     string
	savedConfig    Config
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`
	OutputFile string `yaml:"output_file" json:"output_file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`       // MB
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // 保留的旧文件数
	MaxAge     int    `yaml:"max_age" json:"max_age"`         // 天
	Compress   bool   `yaml:"compress" json:"compress"`
	// DailyFile 为 true 时按自然日命名日志文件：logs/skinscan_2026-10-15.log
	DailyFile bool `yaml:"daily_file" json:"daily_file"`
}

// dailyFileName 生成按日命名的日志文件路径
func dailyFileName(basePath string, day string) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, day, ext))
}

func newFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
		ForceColors:     true,
	}
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()
	return initLocked(config, time.Now())
}

func initLocked(config Config, now time.Time) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		logFilePath := config.OutputFile
		if config.DailyFile {
			currentDay = now.Format("2006-01-02")
			logFilePath = dailyFileName(config.OutputFile, currentDay)
		}
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		currentLogFile = logFilePath
	}
	savedConfig = config

	out := io.MultiWriter(writers...)

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(newFormatter())
	l.SetOutput(out)

	// 各组件通过 logrus.WithField 取得的 entry 也需要写入同一个文件
	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter())

	Logger = l
	return nil
}

// RotateDaily 日期变化时切换到新的日志文件；未启用 DailyFile 时不做任何事
func RotateDaily(now time.Time) error {
	logMu.Lock()
	defer logMu.Unlock()

	if !savedConfig.DailyFile || savedConfig.OutputFile == "" {
		return nil
	}
	if now.Format("2006-01-02") == currentDay {
		return nil
	}
	old := currentLogFile
	if err := initLocked(savedConfig, now); err != nil {
		return err
	}
	Logger.Infof("日志文件已切换: %s -> %s", old, currentLogFile)
	return nil
}

// CurrentFile 返回当前写入的日志文件
func CurrentFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}

// Debugf 记录格式化的 DEBUG 级别日志
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Info 记录 INFO 级别日志
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}
