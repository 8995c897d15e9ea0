package envvar

const (
	// EchocodeEnv is the environment variable used to determine the environment
	EchocodeEnv = "ECHOCODE_ENV"

	// EchocodePython is the Python interpreter used by Python-backed workers
	EchocodePython = "ECHOCODE_PYTHON"

	// EchocodeModelsPath overrides the directory models are stored in
	EchocodeModelsPath = "ECHOCODE_MODELS_PATH"

	// EchocodeIntentThreshold overrides the intent acceptance threshold
	EchocodeIntentThreshold = "ECHOCODE_INTENT_THRESHOLD"

	// EchocodeIntentModel overrides the model ID assigned to the intent service
	EchocodeIntentModel = "ECHOCODE_INTENT_MODEL"

	// EchocodeSTTModel overrides the model ID assigned to the stt service
	EchocodeSTTModel = "ECHOCODE_STT_MODEL"

	// EchocodeLogLevel overrides the log level
	EchocodeLogLevel = "ECHOCODE_LOG_LEVEL"

	// EchocodeServerHTTPPort is the environment variable used to determine the HTTP port
	EchocodeServerHTTPPort = "ECHOCODE_SERVER_HTTP_PORT"

	// EchocodeServerGRPCPort is the environment variable used to determine the gRPC port
	EchocodeServerGRPCPort = "ECHOCODE_SERVER_GRPC_PORT"

	// OpenAIAPIKey is read by the openai embedding backend
	OpenAIAPIKey = "OPENAI_API_KEY"
)
