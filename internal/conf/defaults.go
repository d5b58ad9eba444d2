// defaults.go: default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "FieldSync")
	viper.SetDefault("main.deviceid", "")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/fieldsync.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("store.path", "fieldsync.db")

	viper.SetDefault("central.host", "localhost")
	viper.SetDefault("central.port", "3306")
	viper.SetDefault("central.username", "fieldsync")
	viper.SetDefault("central.password", "")
	viper.SetDefault("central.database", "fieldservice")

	viper.SetDefault("sync.baseinterval", "30s")
	viper.SetDefault("sync.batchcap", 25)
	viper.SetDefault("sync.attemptceiling", 5)
	viper.SetDefault("sync.minretryinterval", "5s")
	viper.SetDefault("sync.retentionwindow", "24h")
	viper.SetDefault("sync.queuesoftlimit", 500)

	viper.SetDefault("timeouts.probe", "3s")
	viper.SetDefault("timeouts.adapter", "15s")
	viper.SetDefault("timeouts.blob", "60s")
	viper.SetDefault("timeouts.transcriber", "20s")
	viper.SetDefault("timeouts.translator", "20s")

	viper.SetDefault("media.blobdir", "blobs/")
	viper.SetDefault("media.mindiskfree", 50*1024*1024)

	viper.SetDefault("voice.thresholds", map[string]float64{})
	viper.SetDefault("voice.translateto", "")
}
