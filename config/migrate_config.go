package config

type MigrateConfig struct {
	Database Database
	Log      log
	Mongo    Mongo
}

func (conf *MigrateConfig) Validate() error {
	if err := validateDatabaseConf(conf.Database); err != nil {
		return err
	}
	return validateMongoConf(conf.Mongo)
}

func CheckSuperfluousMigrateKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addDatabaseConfigKeys(validKeys)
	addLogConfigKeys(validKeys)
	addMongoConfigKeys(validKeys)

	return unknownKeys(keys, validKeys)
}
