package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

func NewRunLedgerStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// Run table
	table := awsdynamodb.NewTableV2(stack, jsii.String("Table"), &awsdynamodb.TablePropsV2{
		TableName: jsii.String(cfg.TableName),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("pk"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("sk"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		Billing:             awsdynamodb.Billing_OnDemand(nil),
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       removalPolicy(cfg.DestroyOnDelete),
		GlobalSecondaryIndexes: &[]*awsdynamodb.GlobalSecondaryIndexPropsV2{
			{
				IndexName: jsii.String("GSI1"),
				PartitionKey: &awsdynamodb.Attribute{
					Name: jsii.String("gsi1pk"),
					Type: awsdynamodb.AttributeType_STRING,
				},
				SortKey: &awsdynamodb.Attribute{
					Name: jsii.String("gsi1sk"),
					Type: awsdynamodb.AttributeType_STRING,
				},
			},
		},
	})

	// Artifact bucket
	var bucket awss3.IBucket
	if cfg.BucketName != "" {
		bucket = awss3.Bucket_FromBucketName(stack, jsii.String("ArtifactBucket"), jsii.String(cfg.BucketName))
	} else {
		bucket = awss3.NewBucket(stack, jsii.String("ArtifactBucket"), &awss3.BucketProps{
			BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
			Encryption:        awss3.BucketEncryption_S3_MANAGED,
			EnforceSSL:        jsii.Bool(true),
			RemovalPolicy:     removalPolicy(cfg.DestroyOnDelete),
			AutoDeleteObjects: jsii.Bool(cfg.DestroyOnDelete),
			LifecycleRules: &[]*awss3.LifecycleRule{
				{Expiration: awscdk.Duration_Days(jsii.Number(cfg.ArtifactTTLDays))},
			},
		})
	}

	env := &map[string]*string{
		"STAGE":           jsii.String(cfg.Stage),
		"LOG_LEVEL":       jsii.String(cfg.LogLevel),
		"TABLE_NAME":      table.TableName(),
		"S3_BUCKET":       bucket.BucketName(),
		"GITHUB_OWNER":    jsii.String(cfg.GitHubOwner),
		"GITHUB_REPO":     jsii.String(cfg.GitHubRepo),
		"GITHUB_WORKFLOW": jsii.String(cfg.GitHubWorkflow),
	}
	if cfg.TokenSecretARN != "" {
		(*env)["GITHUB_TOKEN_SECRET_ARN"] = jsii.String(cfg.TokenSecretARN)
	}
	if cfg.WebhookSecretARN != "" {
		(*env)["GITHUB_WEBHOOK_SECRET_ARN"] = jsii.String(cfg.WebhookSecretARN)
	}

	var bus awsevents.EventBus
	if cfg.EventBusName != "" {
		bus = awsevents.NewEventBus(stack, jsii.String("EventBus"), &awsevents.EventBusProps{
			EventBusName: jsii.String(cfg.EventBusName),
		})
		(*env)["EVENT_BUS_NAME"] = bus.EventBusName()
	}

	timeout := awscdk.Duration_Seconds(jsii.Number(cfg.Timeout))
	memorySize := jsii.Number(cfg.MemorySize)
	logRetention := logRetentionDays(cfg.LogRetentionDays)

	makeFn := func(name string, timeout awscdk.Duration) awslambda.Function {
		return awslambda.NewFunction(stack, jsii.String(name), &awslambda.FunctionProps{
			FunctionName: jsii.String(cfg.TableName + "-" + name),
			Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
			Handler:      jsii.String("bootstrap"),
			Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, name)), nil),
			Architecture: awslambda.Architecture_ARM_64(),
			MemorySize:   memorySize,
			Timeout:      timeout,
			Environment:  env,
			LogRetention: logRetention,
		})
	}

	apiFn := makeFn("api", timeout)
	sweeperFn := makeFn("sweeper", awscdk.Duration_Minutes(jsii.Number(5)))

	// Grants
	for _, fn := range []awslambda.Function{apiFn, sweeperFn} {
		table.GrantReadWriteData(fn)
		bucket.GrantRead(fn, nil)
		if bus != nil {
			fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
				Actions:   &[]*string{jsii.String("events:PutEvents")},
				Resources: &[]*string{bus.EventBusArn()},
			}))
		}
		if secrets := secretARNs(cfg); len(secrets) > 0 {
			fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
				Actions:   &[]*string{jsii.String("secretsmanager:GetSecretValue")},
				Resources: &secrets,
			}))
		}
	}

	// HTTP API
	api := awsapigateway.NewLambdaRestApi(stack, jsii.String("Api"), &awsapigateway.LambdaRestApiProps{
		RestApiName: jsii.String(cfg.TableName + "-api"),
		Handler:     apiFn,
		Proxy:       jsii.Bool(true),
		DeployOptions: &awsapigateway.StageOptions{
			StageName: jsii.String(cfg.Stage),
		},
	})

	// Sweep schedule
	awsevents.NewRule(stack, jsii.String("SweepSchedule"), &awsevents.RuleProps{
		Description: jsii.String("Reconciles stale test runs with GitHub"),
		Schedule:    awsevents.Schedule_Rate(awscdk.Duration_Minutes(jsii.Number(cfg.SweepMinutes))),
		Targets:     &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(sweeperFn, nil)},
	})

	// Outputs
	awscdk.NewCfnOutput(stack, jsii.String("ApiUrl"), &awscdk.CfnOutputProps{
		Value: api.Url(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("TableName"), &awscdk.CfnOutputProps{
		Value: table.TableName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("BucketName"), &awscdk.CfnOutputProps{
		Value: bucket.BucketName(),
	})

	return stack
}

func secretARNs(cfg StackConfig) []*string {
	var out []*string
	for _, arn := range []string{cfg.TokenSecretARN, cfg.WebhookSecretARN} {
		if arn != "" {
			out = append(out, jsii.String(arn))
		}
	}
	return out
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_TWO_WEEKS
	}
}
