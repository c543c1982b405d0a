package universal_saver

import (
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	t.Setenv("SAVER_API_URL", "")
	t.Setenv("NEXT_PUBLIC_API_URL", "")

	cfg, err := LoadConfig()
	require.Nil(err)
	assert.Equal(DefaultAPIURL, cfg.APIURL)
	assert.Equal(DefaultDownloadDir, cfg.DownloadDir)
	assert.Equal(time.Duration(0), cfg.RequestTimeout)
	assert.Equal(DefaultSuccessDisplay, cfg.SuccessDisplay)
	assert.Equal(DefaultLogLevel, cfg.LogLevel)
}

func TestLoadConfig_Environment(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	t.Setenv("SAVER_API_URL", "https://saver.example.com/")
	t.Setenv("SAVER_DOWNLOAD_DIR", "/tmp/saved")
	t.Setenv("SAVER_REQUEST_TIMEOUT", "30s")
	t.Setenv("SAVER_SUCCESS_DISPLAY", "2s")
	t.Setenv("SAVER_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.Nil(err)
	assert.Equal("https://saver.example.com", cfg.APIURL)
	assert.Equal("/tmp/saved", cfg.DownloadDir)
	assert.Equal(30*time.Second, cfg.RequestTimeout)
	assert.Equal(2*time.Second, cfg.SuccessDisplay)
	assert.Equal("debug", cfg.LogLevel)
}

func TestLoadConfig_LegacyAPIURL(t *testing.T) {
	assert := assert_.New(t)
	t.Setenv("SAVER_API_URL", "")
	t.Setenv("NEXT_PUBLIC_API_URL", "http://backend.internal:9000")

	cfg, err := LoadConfig()
	if assert.Nil(err) {
		assert.Equal("http://backend.internal:9000", cfg.APIURL)
	}

	// The native variable wins when both are set
	t.Setenv("SAVER_API_URL", "http://preferred.internal")
	cfg, err = LoadConfig()
	if assert.Nil(err) {
		assert.Equal("http://preferred.internal", cfg.APIURL)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	assert := assert_.New(t)

	for _, apiURL := range []string{"ftp://example.com", "example.com:8000", "http://"} {
		t.Setenv("SAVER_API_URL", apiURL)
		_, err := LoadConfig()
		assert.Error(err, apiURL)
	}

	t.Setenv("SAVER_API_URL", "http://127.0.0.1:8000")
	t.Setenv("SAVER_REQUEST_TIMEOUT", "-1s")
	_, err := LoadConfig()
	assert.Error(err)
}
