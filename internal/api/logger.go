package api

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mautops/casework-gin/internal/config"
	"github.com/sirupsen/logrus"
)

// ServiceName 服务名,用于日志聚合和追踪
const ServiceName = "casework-gin"

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

var defaultLogger *logrus.Logger

// NewLogger 创建输出到标准输出的 JSON 日志记录器
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(newFormatter("json"))
	logger.SetLevel(logrus.InfoLevel)
	logger.SetOutput(os.Stdout)
	logger.AddHook(newServiceHook())
	return logger
}

// NewLoggerFromConfig 根据配置创建日志记录器
// 无法识别的级别按 info 处理,output 为 file 或 both 时写入 <dir>/casework-gin.log
func NewLoggerFromConfig(cfg *config.LogConfig) (*logrus.Logger, error) {
	out, err := openOutput(cfg.Output, cfg.Dir)
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetFormatter(newFormatter(cfg.Format))
	logger.SetLevel(level)
	logger.SetOutput(out)
	logger.AddHook(newServiceHook())
	return logger, nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "time",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		}
	}
	return &logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true}
}

// openOutput 打开日志输出,未配置时退回标准输出
func openOutput(output, dir string) (io.Writer, error) {
	toStdout := output != "file"
	toFile := output == "file" || output == "both"
	if !toFile {
		return os.Stdout, nil
	}

	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(filepath.Join(dir, ServiceName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	if toStdout {
		return io.MultiWriter(os.Stdout, file), nil
	}
	return file, nil
}

// serviceHook 为每条日志补充服务名,已有同名字段时不覆盖
type serviceHook struct {
	fields logrus.Fields
}

func newServiceHook() *serviceHook {
	return &serviceHook{fields: logrus.Fields{"service": ServiceName}}
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// GetLogger 获取默认日志记录器
func GetLogger() *logrus.Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger()
	}
	return defaultLogger
}

// SetLogger 替换默认日志记录器
func SetLogger(logger *logrus.Logger) {
	defaultLogger = logger
}
