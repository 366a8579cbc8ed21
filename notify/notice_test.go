package notify

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoticeLog_MapsSeverityToLevel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cases := []struct {
		notice *Notice
		level  logrus.Level
	}{
		{Success("Saved", "client created"), logrus.InfoLevel},
		{Info("Heads up", "nothing changed"), logrus.InfoLevel},
		{Warning("Partial", "feed trimmed"), logrus.WarnLevel},
		{FromError("Dashboard unavailable", errors.New("store unreachable")), logrus.ErrorLevel},
	}
	for _, c := range cases {
		hook.Reset()
		c.notice.Log(logger, logrus.Fields{"path": "/api/dashboard/stats"})
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, c.level, entry.Level)
		assert.Equal(t, c.notice.Description, entry.Message)
		assert.Equal(t, c.notice.Title, entry.Data["notice_title"])
		assert.Equal(t, "/api/dashboard/stats", entry.Data["path"])
	}

	hook.Reset()
	var missing *Notice
	missing.Log(logger, nil)
	assert.Nil(t, hook.LastEntry())
}

func TestEnvelopeJSON(t *testing.T) {
	b, err := json.Marshal(Wrap([]int{}, Error("Activity unavailable", "timeout")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[],"notice":{"title":"Activity unavailable","description":"timeout","severity":"error"}}`, string(b))

	b, err = json.Marshal(Wrap(map[string]int{"id": 1}, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"id":1}}`, string(b))
}
