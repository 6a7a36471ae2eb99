package utils

import (
	"os"

	"go.uber.org/zap"
)

var (
	debug  bool
	logger = zap.NewNop().Sugar()
)

func init() {
	debug = os.Getenv("DEBUG") != ""
}

// SetLogger routes the package helpers through l. Called once from main.
func SetLogger(l *zap.Logger) {
	logger = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// LogInfo example:
//
// LogInfo("metadata source %s", source)
//
func LogInfo(msg string, vars ...interface{}) {
	logger.Infof(msg, vars...)
}

// LogDebug example:
//
// LogDebug("viewport %s composed", name)
//
func LogDebug(msg string, vars ...interface{}) {
	if debug {
		logger.Debugf(msg, vars...)
	}
}

// LogWarn is used for host failures that only make a feature disappear.
func LogWarn(msg string, vars ...interface{}) {
	logger.Warnf(msg, vars...)
}

// LogFatal example:
//
// LogFatal(errors.New("cannot read config"))
//
func LogFatal(err error) {
	logger.Fatalw(err.Error())
}

// LogError example:
//
// LogError(errors.Errorf("cannot reach orthanc at %s", uri))
//
func LogError(err error) {
	if err == nil {
		return
	}
	logger.Errorw(err.Error())
}
