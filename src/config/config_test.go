package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetDataDir(t *testing.T) {
	c := NewDefaultConfig()
	c.SetDataDir("/tmp/puffsd")

	assert.Equal(t, filepath.Join("/tmp/puffsd", DefaultBadgerFile), c.DatabaseDir)
	assert.Equal(t, filepath.Join("/tmp/puffsd", DefaultKeyfile), c.Keyfile())

	// an explicit database dir is kept
	c.DatabaseDir = "/data/db"
	c.SetDataDir("/tmp/other")
	assert.Equal(t, "/data/db", c.DatabaseDir)
}

func TestFlowParams(t *testing.T) {
	c := NewDefaultConfig()
	params := c.FlowParams()
	assert.Equal(t, int64(DefaultFlowBufferLimit), params.BufferLimit.Int64())
	assert.Equal(t, int64(DefaultFlowMaxRechargeRate), params.MaxRechargeRate.Int64())
	assert.Len(t, params.Costs, 2)

	c.FlowBufferLimit = 1000
	c.FlowMaxRechargeRate = 0
	params = c.FlowParams()
	assert.Equal(t, int64(1000), params.BufferLimit.Int64())
	assert.Equal(t, int64(DefaultFlowMaxRechargeRate), params.MaxRechargeRate.Int64())
}

func TestLogger(t *testing.T) {
	c := NewDefaultConfig()
	c.LogLevel = "warn"
	c.LogFile = filepath.Join(t.TempDir(), "puffsd.log")

	entry := c.Logger()
	assert.Equal(t, "puffsd", entry.Data["prefix"])
	assert.Equal(t, logrus.WarnLevel, entry.Logger.Level)
	assert.Len(t, entry.Logger.Hooks[logrus.WarnLevel], 1)

	tc := NewTestConfig(t, logrus.InfoLevel)
	assert.Equal(t, logrus.InfoLevel, tc.Logger().Logger.Level)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.ErrorLevel, LogLevel("error"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("nonsense"))
}
