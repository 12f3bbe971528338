package main

import (
	"os"
	"strconv"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if v := os.Getenv("STAGE"); v != "" {
		cfg.Stage = v
	}
	if v := os.Getenv("RUNLEDGER_TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
	if v := os.Getenv("RUNLEDGER_BUCKET_NAME"); v != "" {
		cfg.BucketName = v
	}
	if v, ok := os.LookupEnv("RUNLEDGER_EVENT_BUS"); ok {
		cfg.EventBusName = v
	}
	if v := os.Getenv("RUNLEDGER_SWEEP_MINUTES"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.SweepMinutes = n
		}
	}
	cfg.TokenSecretARN = os.Getenv("GITHUB_TOKEN_SECRET_ARN")
	cfg.WebhookSecretARN = os.Getenv("GITHUB_WEBHOOK_SECRET_ARN")
	cfg.DestroyOnDelete = os.Getenv("RUNLEDGER_DESTROY_ON_DELETE") == "true"

	stackName := "RunLedgerStack"
	if name := os.Getenv("RUNLEDGER_STACK_NAME"); name != "" {
		stackName = name
	}

	NewRunLedgerStack(app, stackName, cfg)
	app.Synth(nil)
}
