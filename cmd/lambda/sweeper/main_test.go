package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
)

func TestHandler_RequiresEnv(t *testing.T) {
	t.Setenv("TABLE_NAME", "")
	t.Setenv("DYNAMODB_TABLE", "")

	_, err := handler(context.Background(), events.CloudWatchEvent{Source: "aws.events"})
	assert.ErrorContains(t, err, "dynamodb.tableName is required")
}
