package utils

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings are the per-chain platform settings read from CONFIG_PATH
type Settings struct {
	ChainId                int              `json:"chainId"`
	PaymentMaxLookBackDays int              `json:"paymentMaxLookBackDays"`
	PayCronSchedule        string           `json:"paymentScheduleCron"`
	SakTokenAddr           string           `json:"sakTokenAddr"`
	SakDecimals            uint8            `json:"sakDecimals"`
	PassportNftAddr        string           `json:"passportNftAddr"`
	MinPayoutSak           float64          `json:"minPayoutSak"`
	SakPerSeva             float64          `json:"sakPerSeva"`
	Pricing                PricingSettings  `json:"pricing"`
	SevaRewards            map[string]int64 `json:"sevaRewards"`
	SevaMaxPerEarn         int64            `json:"sevaMaxPerEarn"`
	AiWeight               float64          `json:"aiWeight"`
}

type PricingSettings struct {
	CommunityBps     int64 `json:"communityBps"`
	SupporterBps     int64 `json:"supporterBps"`
	RoundingCents    int64 `json:"roundingCents"`
	SevaValueCents   int64 `json:"sevaValueCents"`
	MaxSevaShareBps  int64 `json:"maxSevaShareBps"`
	SevaEarnPerCents int64 `json:"sevaEarnPerCents"`
}

type Rpc struct {
	ChainId int      `json:"chainId"`
	Rpc     []string `json:"HTTP"`
}

// LoadEnv reads the .env file (optional) and the process environment,
// and fails if any of the required variables is unset
func LoadEnv(required []string, envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		zap.L().Warn("could not load .env file", zap.String("file", envFile), zap.Error(err))
	}
	v.AutomaticEnv()
	for _, e := range required {
		if !v.IsSet(e) {
			return nil, errors.New("required environment variable not set " + e)
		}
	}
	return v, nil
}

// LoadSettings picks the settings entry for chainId from the JSON
// array in fileName
func LoadSettings(fileName string, chainId int) (Settings, error) {
	var configs []Settings
	data, err := os.ReadFile(fileName)
	if err != nil {
		return Settings{}, errors.Wrap(err, "read settings")
	}
	if err := json.Unmarshal(data, &configs); err != nil {
		return Settings{}, errors.Wrap(err, "parse settings")
	}
	for k := 0; k < len(configs); k++ {
		if configs[k].ChainId == chainId {
			s := configs[k]
			s.applyDefaults()
			return s, nil
		}
	}
	return Settings{}, errors.New("no setting found for chain id " + strconv.Itoa(chainId))
}

func (s *Settings) applyDefaults() {
	if s.PaymentMaxLookBackDays == 0 {
		s.PaymentMaxLookBackDays = 14
	}
	if s.PayCronSchedule == "" {
		s.PayCronSchedule = "0 14 * * 2"
	}
	if s.SakDecimals == 0 {
		s.SakDecimals = 18
	}
	if s.SakPerSeva == 0 {
		s.SakPerSeva = 0.1
	}
	if s.MinPayoutSak == 0 {
		s.MinPayoutSak = 1
	}
	if s.SevaMaxPerEarn == 0 {
		s.SevaMaxPerEarn = 200
	}
	if s.AiWeight == 0 {
		s.AiWeight = 0.6
	}
}

// LoadRPCConfig loads the RPC list for the configured chain
func LoadRPCConfig(fileName string, chainId int) ([]string, error) {
	var r []Rpc
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "read rpc config")
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "parse rpc config")
	}
	for k := 0; k < len(r); k++ {
		if r[k].ChainId == chainId && len(r[k].Rpc) > 0 {
			return r[k].Rpc, nil
		}
	}
	return nil, errors.New("no RPC for chainId " + strconv.Itoa(chainId))
}
