package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ekisa-team/echocode-voice/internal/envvar"
)

func getEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func getEnvInt(key string) (int, bool, error) {
	v, ok := getEnv(key)
	if !ok {
		return 0, false, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}

	return n, true, nil
}

func getEnvFloat(key string) (float64, bool, error) {
	v, ok := getEnv(key)
	if !ok {
		return 0, false, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}

	return f, true, nil
}

// ApplyEnv overrides configuration values from ECHOCODE_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := getEnv(envvar.EchocodePython); ok {
		cfg.Runtime.Python = v
	}
	if v, ok := getEnv(envvar.EchocodeModelsPath); ok {
		cfg.Storage.ModelsDir = v
	}
	if v, ok := getEnv(envvar.EchocodeIntentModel); ok {
		cfg.UseIntentModel(v)
	}
	if v, ok := getEnv(envvar.EchocodeSTTModel); ok {
		cfg.Services.STT.Models = []string{v}
	}
	if v, ok := getEnv(envvar.EchocodeLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}

	threshold, ok, err := getEnvFloat(envvar.EchocodeIntentThreshold)
	if err != nil {
		return err
	}
	if ok {
		cfg.Services.Intent.Threshold = threshold
	}

	httpPort, ok, err := getEnvInt(envvar.EchocodeServerHTTPPort)
	if err != nil {
		return err
	}
	if ok {
		cfg.Server.HTTPPort = httpPort
	}

	grpcPort, ok, err := getEnvInt(envvar.EchocodeServerGRPCPort)
	if err != nil {
		return err
	}
	if ok {
		cfg.Server.GRPCPort = grpcPort
	}

	return nil
}
