package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// PutRun writes the full run item with its index keys and an expiry counted
// from the run's creation time.
func (p *DynamoDBProvider) PutRun(ctx context.Context, run types.Run) error {
	return p.putItem(ctx, newRunItem(run, ttlEpoch(provider.RetentionStart(run.Timestamp, p.now()), p.retentionTTL)))
}

func (p *DynamoDBProvider) putItem(ctx context.Context, ri runItem) error {
	item, err := attributevalue.MarshalMap(ri)
	if err != nil {
		return fmt.Errorf("marshaling run %q: %w", ri.RunID, err)
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting run %q: %w", ri.RunID, err)
	}
	return nil
}

// GetRun pages through the brand partition until the run id is found.
func (p *DynamoDBProvider) GetRun(ctx context.Context, brand types.Brand, runID string) (*types.Run, error) {
	item, err := p.findRunItem(ctx, brand, runID)
	if err != nil {
		return nil, err
	}
	run, err := item.run()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (p *DynamoDBProvider) findRunItem(ctx context.Context, brand types.Brand, runID string) (*runItem, error) {
	paginator := dynamodb.NewQueryPaginator(p.client, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		FilterExpression:       aws.String("runId = :runId"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: brandPK(brand)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRun},
			":runId":  &ddbtypes.AttributeValueMemberS{Value: runID},
		},
	})
	now := p.now()
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying run %q: %w", runID, err)
		}
		for _, raw := range out.Items {
			var item runItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				p.logger.Warn("skipping corrupt run data", "runId", runID, "error", err)
				continue
			}
			if isExpired(item.TTL, now) {
				continue
			}
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, brand, runID)
}

// ListRunsByBrand queries the brand partition newest first.
func (p *DynamoDBProvider) ListRunsByBrand(ctx context.Context, brand types.Brand, q types.RunQuery) (*types.RunPage, error) {
	lo, hi := keyRange(prefixRun, q.Start, q.End)
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :lo AND :hi"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: brandPK(brand)},
			":lo": &ddbtypes.AttributeValueMemberS{Value: lo},
			":hi": &ddbtypes.AttributeValueMemberS{Value: hi},
		},
		ScanIndexForward: aws.Bool(false),
	}
	return p.queryPage(ctx, input, q)
}

// ListRunsByStatus queries the status index newest first. A brand in q is
// applied as a filter expression.
func (p *DynamoDBProvider) ListRunsByStatus(ctx context.Context, status types.RunStatus, q types.RunQuery) (*types.RunPage, error) {
	lo, hi := keyRange(prefixTimestamp, q.Start, q.End)
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		IndexName:              aws.String(indexStatus),
		KeyConditionExpression: aws.String("gsi1pk = :pk AND gsi1sk BETWEEN :lo AND :hi"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: statusPK(status)},
			":lo": &ddbtypes.AttributeValueMemberS{Value: lo},
			":hi": &ddbtypes.AttributeValueMemberS{Value: hi},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if q.Brand != "" {
		input.FilterExpression = aws.String("brand = :brand")
		input.ExpressionAttributeValues[":brand"] = &ddbtypes.AttributeValueMemberS{Value: string(q.Brand)}
	}
	return p.queryPage(ctx, input, q)
}

func (p *DynamoDBProvider) queryPage(ctx context.Context, input *dynamodb.QueryInput, q types.RunQuery) (*types.RunPage, error) {
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(q.Limit))
	}
	pos, err := provider.DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		input.ExclusiveStartKey = make(map[string]ddbtypes.AttributeValue, len(pos))
		for k, v := range pos {
			input.ExclusiveStartKey[k] = &ddbtypes.AttributeValueMemberS{Value: v}
		}
	}

	out, err := p.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	now := p.now()
	page := &types.RunPage{Runs: make([]types.Run, 0, len(out.Items))}
	for _, raw := range out.Items {
		var item runItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			p.logger.Warn("skipping corrupt run data", "error", err)
			continue
		}
		if isExpired(item.TTL, now) {
			continue
		}
		run, err := item.run()
		if err != nil {
			p.logger.Warn("skipping corrupt run data", "error", err)
			continue
		}
		page.Runs = append(page.Runs, run)
	}

	if len(out.LastEvaluatedKey) > 0 {
		last := make(map[string]string, len(out.LastEvaluatedKey))
		for k, v := range out.LastEvaluatedKey {
			if s, ok := v.(*ddbtypes.AttributeValueMemberS); ok {
				last[k] = s.Value
			}
		}
		page.Cursor = provider.EncodeCursor(last)
	}
	return page, nil
}

// UpdateRunStatus applies a conditional status update. With a known key
// timestamp the physical key is computed directly; otherwise the record is
// located first.
func (p *DynamoDBProvider) UpdateRunStatus(ctx context.Context, key types.RunKey, status types.RunStatus, update types.RunUpdate) (*types.Run, error) {
	var sk string
	located := key.Timestamp.IsZero()
	if located {
		item, err := p.findRunItem(ctx, key.Brand, key.RunID)
		if err != nil {
			return nil, err
		}
		sk = item.SK
	} else {
		sk = runSK(key.Timestamp, key.RunID)
	}

	run, err := p.conditionalUpdate(ctx, key.Brand, sk, status, update)
	if err == nil {
		return run, nil
	}
	ccfe, ok := conditionFailure(err)
	if !ok {
		return nil, fmt.Errorf("updating run %q: %w", key.RunID, err)
	}
	if ccfe.Item != nil {
		return nil, rejected(key.RunID, ccfe.Item, status)
	}
	if located {
		return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, key.Brand, key.RunID)
	}

	// Nothing at the computed key: the record may have been written with a
	// different timestamp encoding, so fall back to a lookup.
	item, err := p.findRunItem(ctx, key.Brand, key.RunID)
	if err != nil {
		return nil, err
	}
	if item.SK == sk {
		return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, key.Brand, key.RunID)
	}
	run, err = p.conditionalUpdate(ctx, key.Brand, item.SK, status, update)
	if err == nil {
		return run, nil
	}
	if ccfe, ok := conditionFailure(err); ok && ccfe.Item != nil {
		return nil, rejected(key.RunID, ccfe.Item, status)
	}
	return nil, fmt.Errorf("updating run %q: %w", key.RunID, err)
}

func rejected(runID string, current map[string]ddbtypes.AttributeValue, to types.RunStatus) error {
	var from string
	_ = attributevalue.Unmarshal(current["status"], &from)
	return provider.RejectTransition(runID, types.RunStatus(from), to)
}

func (p *DynamoDBProvider) conditionalUpdate(ctx context.Context, brand types.Brand, sk string, status types.RunStatus, update types.RunUpdate) (*types.Run, error) {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = p.now()
	}

	names := map[string]string{"#status": "status"}
	values := map[string]ddbtypes.AttributeValue{
		":status": &ddbtypes.AttributeValueMemberS{Value: string(status)},
		":gsi1pk": &ddbtypes.AttributeValueMemberS{Value: statusPK(status)},
	}
	expr := "SET #status = :status, " + attrGSI1PK + " = :gsi1pk"

	set := func(attr string, v any) error {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", attr, err)
		}
		names["#"+attr] = attr
		values[":"+attr] = av
		expr += ", #" + attr + " = :" + attr
		return nil
	}

	fields := []struct {
		attr string
		ok   bool
		val  any
	}{
		{"updatedAt", true, types.FormatTimestamp(update.UpdatedAt)},
		{"githubRunId", update.GitHubRunID != 0, update.GitHubRunID},
		{"commit", update.Commit != "", update.Commit},
		{"conclusion", update.Conclusion != "", update.Conclusion},
		{"workflowName", update.WorkflowName != "", update.WorkflowName},
		{"runNumber", update.RunNumber != 0, update.RunNumber},
		{"duration", update.Duration != nil, update.Duration},
		{"tests", update.Tests != nil, newTestsItem(update.Tests)},
		{"reason", update.Reason != "", update.Reason},
	}
	for _, f := range fields {
		if !f.ok {
			continue
		}
		if err := set(f.attr, f.val); err != nil {
			return nil, err
		}
	}

	from := lifecycle.AllowedFrom(status)
	placeholders := make([]string, len(from))
	for i, s := range from {
		ph := ":from" + strconv.Itoa(i)
		placeholders[i] = ph
		values[ph] = &ddbtypes.AttributeValueMemberS{Value: string(s)}
	}
	cond := "attribute_exists(" + attrPK + ") AND #status IN (" + strings.Join(placeholders, ", ") + ")"

	out, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: brandPK(brand)},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:                    aws.String(expr),
		ConditionExpression:                 aws.String(cond),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValues:                        ddbtypes.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: ddbtypes.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return nil, err
	}

	var item runItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling updated run: %w", err)
	}
	run, err := item.run()
	if err != nil {
		return nil, err
	}
	return &run, nil
}
