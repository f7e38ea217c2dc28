package logging

import (
	"os"
	"strings"

	"courierledger/internal/config"

	"github.com/sirupsen/logrus"
)

var logg = logrus.New()

// L 返回全局 logger，未调用 Init 时为 logrus 默认配置
func L() *logrus.Logger {
	return logg
}

// Init 按配置设置日志格式与级别
func Init(cfg *config.LogConfig) *logrus.Logger {
	if strings.EqualFold(cfg.Format, "text") {
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logg.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logg.SetLevel(level)
	logg.SetOutput(os.Stdout)
	return logg
}

// Module 返回带模块名的 entry
func Module(name string) *logrus.Entry {
	return logg.WithField("module", name)
}

func LogError(moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logg.WithFields(fields).Error(err.Error())
}
