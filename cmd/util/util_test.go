package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestStoreConfigFromFlagsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("SKV_NAME", "from-env")

	cmd := &cobra.Command{Use: "test"}
	SetupStoreFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--engine", "bolt", "--data-dir", t.TempDir(), "--schema-version", "4"}))

	InitConfig()
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))

	conf := GetStoreConfig()
	assert.Equal(t, common.EngineBolt, conf.Engine)
	assert.Equal(t, "from-env", conf.Name)
	assert.Equal(t, "keyvalue", conf.StoreName)
	assert.Equal(t, uint64(4), conf.Version)
	require.NoError(t, conf.Validate())

	f, err := GetFactory(conf)
	require.NoError(t, err)
	defer f.Close()

	h := GetStore(conf, f)
	defer h.Close()
	_, err = h.SetItem("k", []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", h.Name())
}

func TestGetFactoryInvalidEngine(t *testing.T) {
	_, err := GetFactory(&common.StoreConfig{Engine: "redis"})
	assert.Error(t, err)
}
