package main

// StackConfig holds configuration for the runledger CDK stack.
type StackConfig struct {
	Stage            string
	TableName        string
	BucketName       string // existing artifact bucket; a new one is created when empty
	EventBusName     string // empty disables run events
	MemorySize       float64
	Timeout          float64
	LambdaDistDir    string
	LogRetentionDays float64
	LogLevel         string
	SweepMinutes     float64
	ArtifactTTLDays  float64
	DestroyOnDelete  bool

	GitHubOwner      string
	GitHubRepo       string
	GitHubWorkflow   string
	TokenSecretARN   string
	WebhookSecretARN string
}

// DefaultConfig returns a StackConfig with sensible defaults.
func DefaultConfig() StackConfig {
	return StackConfig{
		Stage:            "dev",
		TableName:        "frontend-test-runs",
		EventBusName:     "frontend-tests",
		MemorySize:       256,
		Timeout:          30,
		LambdaDistDir:    "../../dist/lambda",
		LogRetentionDays: 14,
		LogLevel:         "info",
		SweepMinutes:     10,
		ArtifactTTLDays:  90,
		GitHubOwner:      "mwebcode",
		GitHubRepo:       "hgc-frontend-tests",
		GitHubWorkflow:   "run-tests.yml",
	}
}
