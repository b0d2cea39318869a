package config

import (
	"errors"

	"github.com/DefiantLabs/token-relayer/util"
	"github.com/spf13/cobra"
)

type EnqueueConfig struct {
	Database Database
	Log      log
	Request  enqueueRequest
}

type enqueueRequest struct {
	Username    string
	Kind        string
	Payload     string
	PayloadFile string `mapstructure:"payload-file"`
}

func SetupEnqueueSpecificFlags(conf *EnqueueConfig, cmd *cobra.Command) {
	cmd.Flags().StringVar(&conf.Request.Username, "request.username", "", "user submitting the request, must already exist")
	cmd.Flags().StringVar(&conf.Request.Kind, "request.kind", "", "CREATE_TOKEN, MINT_TOKEN, BURN_TOKEN or TRANSFER_TOKEN")
	cmd.Flags().StringVar(&conf.Request.Payload, "request.payload", "", "JSON payload of the request")
	cmd.Flags().StringVar(&conf.Request.PayloadFile, "request.payload-file", "", "file holding the JSON payload, - reads stdin")
}

func (conf *EnqueueConfig) Validate() error {
	if err := validateDatabaseConf(conf.Database); err != nil {
		return err
	}
	if util.StrNotSet(conf.Request.Username) {
		return errors.New("request.username must be set")
	}
	if util.StrNotSet(conf.Request.Kind) {
		return errors.New("request.kind must be set")
	}
	if util.StrNotSet(conf.Request.Payload) == util.StrNotSet(conf.Request.PayloadFile) {
		return errors.New("exactly one of request.payload and request.payload-file must be set")
	}
	return nil
}

func CheckSuperfluousEnqueueKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addDatabaseConfigKeys(validKeys)
	addLogConfigKeys(validKeys)

	for _, key := range getValidConfigKeys(enqueueRequest{}, "request") {
		validKeys[key] = struct{}{}
	}

	return unknownKeys(keys, validKeys)
}
