package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// InitLogger configures the standard logger. Logs never go to stdout, which carries the report.
func InitLogger(level string, stderr bool) (logrus.FieldLogger, error) {
	logger := logrus.StandardLogger()

	if level == "" {
		level = "warn"
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, &ConfigError{Field: "logging.outputLevel", Reason: err.Error()}
	}

	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	var out io.Writer = os.Stderr
	if !stderr {
		out = io.Discard
	}
	logger.SetOutput(out)

	return logger.WithField("module", "validator-health"), nil
}

// LogError logs an error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogError is called.
func LogError(logger logrus.FieldLogger, err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(logger, err, callerSkip, additionalInfos...).Error(errorMsg)
}

func logErrorInfo(logger logrus.FieldLogger, err error, callerSkip int, additionalInfos ...map[string]interface{}) logrus.FieldLogger {
	logFields := logger

	pc, fullFilePath, line, ok := runtime.Caller(callerSkip + 2)
	if ok {
		logFields = logFields.WithFields(logrus.Fields{
			"_file":     filepath.Base(fullFilePath),
			"_function": runtime.FuncForPC(pc).Name(),
			"_line":     line,
		})
	} else {
		logFields = logFields.WithField("runtime", "Callstack cannot be read")
	}

	idx := 0
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		logFields = logFields.WithField(fmt.Sprintf("errInfo_%v", idx), cause.Error())
		idx++
	}

	if err != nil {
		logFields = logFields.WithField("errType", fmt.Sprintf("%T", err)).WithError(err)
	}

	for _, infoMap := range additionalInfos {
		for name, info := range infoMap {
			logFields = logFields.WithField(name, info)
		}
	}

	return logFields
}
