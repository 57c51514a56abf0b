package dynamo

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/reservation-payments/internal"
	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
)

const (
	BookingIndex = "booking_id-index"
	StatusIndex  = "status-index"

	// The id counter lives in the payments table under a reserved key.
	counterID = 0
)

// API is the part of the DynamoDB client the repository uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type paymentItem struct {
	ID         int64  `dynamodbav:"id"`
	BookingID  int64  `dynamodbav:"booking_id"`
	Provider   string `dynamodbav:"provider"`
	Strategy   string `dynamodbav:"strategy"`
	Amount     string `dynamodbav:"amount"`
	Currency   string `dynamodbav:"currency"`
	Status     string `dynamodbav:"status"`
	ExternalID string `dynamodbav:"external_id,omitempty"`
	Metadata   string `dynamodbav:"metadata,omitempty"`
	CreatedAt  string `dynamodbav:"created_at"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// PaymentRepository persists payments in a DynamoDB table.
//
// Table requirements:
//   - PK: id (number)
//   - GSI booking_id-index: PK booking_id (number), SK created_at (string)
//   - GSI status-index: PK status (string), SK updated_at (string)
type PaymentRepository struct {
	ddb       API
	tableName string
	now       func() time.Time
}

func NewPaymentRepository(ddb API, tableName string) *PaymentRepository {
	return &PaymentRepository{
		ddb:       ddb,
		tableName: tableName,
		now:       time.Now,
	}
}

// NewClient builds a DynamoDB client. A non-empty endpoint targets a local
// DynamoDB with static credentials.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (r *PaymentRepository) Insert(ctx context.Context, p *paymentmodel.Payment) (int64, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return 0, err
	}

	p.ID = id
	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	av, err := attributevalue.MarshalMap(toItem(p))
	if err != nil {
		return 0, fmt.Errorf("marshal payment: %w", err)
	}

	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	if err != nil {
		return 0, fmt.Errorf("put payment: %w", err)
	}
	return id, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*paymentmodel.Payment, error) {
	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return fromAttributes(out.Item)
}

func (r *PaymentRepository) FindLatestByBooking(ctx context.Context, bookingID int64) (*paymentmodel.Payment, error) {
	out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(BookingIndex),
		KeyConditionExpression: aws.String("booking_id = :bid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bid": &types.AttributeValueMemberN{Value: strconv.FormatInt(bookingID, 10)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query payments for booking %d: %w", bookingID, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	return fromAttributes(out.Items[0])
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, status string, metadata []byte) error {
	expr := "SET #status = :status, updated_at = :updated"
	values := map[string]types.AttributeValue{
		":status":  &types.AttributeValueMemberS{Value: status},
		":updated": &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339Nano)},
	}
	if metadata != nil {
		expr += ", metadata = :metadata"
		values[":metadata"] = &types.AttributeValueMemberS{Value: string(metadata)}
	}

	_, err := r.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id":     "id",
			"#status": "status",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if stderrors.As(err, &ccf) {
			return errors.ErrPaymentNotFound
		}
		return fmt.Errorf("update payment %d: %w", id, err)
	}
	return nil
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	for _, status := range statuses {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(StatusIndex),
			KeyConditionExpression: aws.String("#status = :status"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: status},
			},
			ScanIndexForward: aws.Bool(true),
		}
		if limit > 0 {
			input.Limit = aws.Int32(int32(limit))
		}

		out, err := r.ddb.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query payments with status %s: %w", status, err)
		}
		for _, raw := range out.Items {
			p, err := fromAttributes(raw)
			if err != nil {
				return nil, err
			}
			payments = append(payments, p)
		}
	}

	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

func (r *PaymentRepository) nextID(ctx context.Context) (int64, error) {
	out, err := r.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              idKey(counterID),
		UpdateExpression: aws.String("ADD next_id :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate payment id: %w", err)
	}

	var counter struct {
		NextID int64 `dynamodbav:"next_id"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("decode payment id: %w", err)
	}
	if counter.NextID <= 0 {
		return 0, fmt.Errorf("allocate payment id: counter returned %d", counter.NextID)
	}
	return counter.NextID, nil
}

func idKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

func toItem(p *paymentmodel.Payment) paymentItem {
	return paymentItem{
		ID:         p.ID,
		BookingID:  p.BookingID,
		Provider:   p.Provider,
		Strategy:   p.Strategy,
		Amount:     p.Amount.StringFixed(2),
		Currency:   p.Currency,
		Status:     p.Status,
		ExternalID: p.ExternalID,
		Metadata:   string(p.Metadata),
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromAttributes(av map[string]types.AttributeValue) (*paymentmodel.Payment, error) {
	var it paymentItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}

	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("payment %d has malformed amount %q: %w", it.ID, it.Amount, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("payment %d has malformed created_at %q: %w", it.ID, it.CreatedAt, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("payment %d has malformed updated_at %q: %w", it.ID, it.UpdatedAt, err)
	}

	p := &paymentmodel.Payment{
		ID:         it.ID,
		BookingID:  it.BookingID,
		Provider:   it.Provider,
		Strategy:   it.Strategy,
		Amount:     amount,
		Currency:   it.Currency,
		Status:     it.Status,
		ExternalID: it.ExternalID,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if it.Metadata != "" {
		p.Metadata = []byte(it.Metadata)
	}
	return p, nil
}
