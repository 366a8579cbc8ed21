// Package notify carries the user-facing notice attached to every API response.
package notify

import (
	"github.com/sirupsen/logrus"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notice struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

func Success(title, description string) *Notice {
	return &Notice{Title: title, Description: description, Severity: SeveritySuccess}
}

func Info(title, description string) *Notice {
	return &Notice{Title: title, Description: description, Severity: SeverityInfo}
}

func Warning(title, description string) *Notice {
	return &Notice{Title: title, Description: description, Severity: SeverityWarning}
}

func Error(title, description string) *Notice {
	return &Notice{Title: title, Description: description, Severity: SeverityError}
}

// FromError builds an error notice whose description is err's message.
func FromError(title string, err error) *Notice {
	description := ""
	if err != nil {
		description = err.Error()
	}
	return Error(title, description)
}

func (s Severity) Level() logrus.Level {
	switch s {
	case SeverityError:
		return logrus.ErrorLevel
	case SeverityWarning:
		return logrus.WarnLevel
	case SeveritySuccess, SeverityInfo:
		return logrus.InfoLevel
	}
	return logrus.DebugLevel
}

// Log writes n at the level matching its severity. A nil notice is ignored.
func (n *Notice) Log(logger logrus.FieldLogger, fields logrus.Fields) {
	if n == nil || logger == nil {
		return
	}
	entry := logger.WithFields(fields).WithFields(logrus.Fields{
		"notice_title": n.Title,
		"severity":     string(n.Severity),
	})
	switch n.Severity.Level() {
	case logrus.ErrorLevel:
		entry.Error(n.Description)
	case logrus.WarnLevel:
		entry.Warn(n.Description)
	case logrus.InfoLevel:
		entry.Info(n.Description)
	default:
		entry.Debug(n.Description)
	}
}

// Envelope is the body of every API response.
type Envelope struct {
	Data   any     `json:"data"`
	Notice *Notice `json:"notice,omitempty"`
}

func Wrap(data any, notice *Notice) Envelope {
	return Envelope{Data: data, Notice: notice}
}
