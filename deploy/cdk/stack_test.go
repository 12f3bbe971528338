package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"
)

// setupTestDirs creates temp directories with dummy bootstrap files so CDK
// asset resolution succeeds without a real build.
func setupTestDirs(t *testing.T) StackConfig {
	t.Helper()
	lambdaDir := filepath.Join(t.TempDir(), "lambda")
	for _, h := range []string{"api", "sweeper"} {
		dir := filepath.Join(lambdaDir, h)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bootstrap"), []byte("#!/bin/sh\n"), 0o755))
	}

	cfg := DefaultConfig()
	cfg.LambdaDistDir = lambdaDir
	cfg.TokenSecretARN = "arn:aws:secretsmanager:af-south-1:123456789012:secret:github-token"
	return cfg
}

func synthTemplate(t *testing.T, cfg StackConfig) assertions.Template {
	t.Helper()
	app := awscdk.NewApp(nil)
	stack := NewRunLedgerStack(app, "TestStack", cfg)
	return assertions.Template_FromStack(stack, nil)
}

func TestRunTable(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::DynamoDB::GlobalTable"), map[string]interface{}{
		"TableName": jsii.String("frontend-test-runs"),
		"KeySchema": &[]interface{}{
			map[string]interface{}{"AttributeName": jsii.String("pk"), "KeyType": jsii.String("HASH")},
			map[string]interface{}{"AttributeName": jsii.String("sk"), "KeyType": jsii.String("RANGE")},
		},
		"TimeToLiveSpecification": map[string]interface{}{
			"AttributeName": jsii.String("ttl"),
			"Enabled":       true,
		},
	})
	tmpl.HasResourceProperties(jsii.String("AWS::DynamoDB::GlobalTable"), map[string]interface{}{
		"GlobalSecondaryIndexes": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"IndexName": jsii.String("GSI1"),
				"KeySchema": &[]interface{}{
					map[string]interface{}{"AttributeName": jsii.String("gsi1pk"), "KeyType": jsii.String("HASH")},
					map[string]interface{}{"AttributeName": jsii.String("gsi1sk"), "KeyType": jsii.String("RANGE")},
				},
			}),
		}),
	})
}

func TestFunctions(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	for _, name := range []string{"frontend-test-runs-api", "frontend-test-runs-sweeper"} {
		tmpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
			"FunctionName":  jsii.String(name),
			"Runtime":       jsii.String("provided.al2023"),
			"Handler":       jsii.String("bootstrap"),
			"Architectures": &[]interface{}{jsii.String("arm64")},
			"Environment": map[string]interface{}{
				"Variables": assertions.Match_ObjectLike(&map[string]interface{}{
					"STAGE":                   jsii.String("dev"),
					"GITHUB_OWNER":            jsii.String("mwebcode"),
					"GITHUB_TOKEN_SECRET_ARN": jsii.String("arn:aws:secretsmanager:af-south-1:123456789012:secret:github-token"),
				}),
			},
		})
	}
}

func TestApiAndSchedule(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	tmpl.HasResourceProperties(jsii.String("AWS::ApiGateway::Resource"), map[string]interface{}{
		"PathPart": jsii.String("{proxy+}"),
	})
	tmpl.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]interface{}{
		"ScheduleExpression": jsii.String("rate(10 minutes)"),
	})
	tmpl.HasResourceProperties(jsii.String("AWS::Events::EventBus"), map[string]interface{}{
		"Name": jsii.String("frontend-tests"),
	})
}

func TestArtifactBucket(t *testing.T) {
	cfg := setupTestDirs(t)
	tmpl := synthTemplate(t, cfg)
	tmpl.ResourceCountIs(jsii.String("AWS::S3::Bucket"), jsii.Number(1))

	cfg.BucketName = "existing-artifacts"
	cfg.EventBusName = ""
	tmpl = synthTemplate(t, cfg)
	tmpl.ResourceCountIs(jsii.String("AWS::S3::Bucket"), jsii.Number(0))
	tmpl.ResourceCountIs(jsii.String("AWS::Events::EventBus"), jsii.Number(0))
}
