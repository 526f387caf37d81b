package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the slice of the DynamoDB client the store uses. Tests swap in
// a fake.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store on a single DynamoDB table keyed by uid.
// Each item embeds its detections as a list; appends go through an atomic
// list_append update. Scores and box coordinates are written as DynamoDB
// number attributes (exact decimal strings), never through a binary float
// encoding, so they round-trip without precision drift.
//
// The score/label queries are full-table scans with in-memory filtering and
// carry that backend's usual eventual-consistency and O(items) cost.
type DynamoDBStore struct {
	client DynamoAPI
	table  string
}

func NewDynamoDB(client DynamoAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, table: table}
}

func (s *DynamoDBStore) SavePrediction(ctx context.Context, session *PredictionSession) error {
	if session == nil || session.UID == "" {
		return fmt.Errorf("%w: empty prediction uid", ErrInvalidArgument)
	}
	if session.Timestamp.IsZero() {
		session.Timestamp = time.Now().UTC()
	}

	item := map[string]types.AttributeValue{
		"uid":             &types.AttributeValueMemberS{Value: session.UID},
		"timestamp":       &types.AttributeValueMemberS{Value: session.Timestamp.UTC().Format(time.RFC3339Nano)},
		"original_image":  &types.AttributeValueMemberS{Value: session.OriginalImage},
		"predicted_image": &types.AttributeValueMemberS{Value: session.PredictedImage},
		"detections":      &types.AttributeValueMemberL{Value: marshalDetections(session.Detections)},
	}
	if session.ChatID != "" {
		item["chat_id"] = &types.AttributeValueMemberS{Value: session.ChatID}
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(uid)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("saving prediction %s: %w", session.UID, ErrConflict)
		}
		return fmt.Errorf("saving prediction: %w (%v)", ErrUnavailable, err)
	}
	return nil
}

func (s *DynamoDBStore) SaveDetections(ctx context.Context, uid string, detections []Detection) error {
	if uid == "" {
		return fmt.Errorf("%w: empty prediction uid", ErrInvalidArgument)
	}
	if len(detections) == 0 {
		return nil
	}

	// Single list_append keeps the whole batch atomic; the condition
	// rejects appends to sessions that were never created.
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 map[string]types.AttributeValue{"uid": &types.AttributeValueMemberS{Value: uid}},
		UpdateExpression:    aws.String("SET detections = list_append(detections, :d)"),
		ConditionExpression: aws.String("attribute_exists(uid)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberL{Value: marshalDetections(detections)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("session %s: %w", uid, ErrNotFound)
		}
		return fmt.Errorf("saving detections: %w (%v)", ErrUnavailable, err)
	}
	return nil
}

func (s *DynamoDBStore) GetPrediction(ctx context.Context, uid string) (*PredictionSession, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: empty prediction uid", ErrInvalidArgument)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"uid": &types.AttributeValueMemberS{Value: uid}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting prediction: %w (%v)", ErrUnavailable, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("prediction %s: %w", uid, ErrNotFound)
	}
	return unmarshalSession(out.Item), nil
}

func (s *DynamoDBStore) GetPredictionsByScore(ctx context.Context, minScore float64) ([]PredictionSummary, error) {
	if !validScore(minScore) {
		return nil, fmt.Errorf("%w: min score %v outside [0,1]", ErrInvalidArgument, minScore)
	}
	return s.scanMatching(ctx, func(d Detection) bool {
		return d.Score >= minScore
	})
}

func (s *DynamoDBStore) GetPredictionsByLabel(ctx context.Context, label string) ([]PredictionSummary, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidArgument)
	}
	return s.scanMatching(ctx, func(d Detection) bool {
		return d.Label == label
	})
}

func (s *DynamoDBStore) Close() error {
	return nil
}

// scanMatching walks the whole table and returns each session with at least
// one detection satisfying match, sorted by uid for deterministic output.
func (s *DynamoDBStore) scanMatching(ctx context.Context, match func(Detection) bool) ([]PredictionSummary, error) {
	summaries := []PredictionSummary{}

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning predictions: %w (%v)", ErrUnavailable, err)
		}

		for _, item := range out.Items {
			session := unmarshalSession(item)
			for _, d := range session.Detections {
				if match(d) {
					summaries = append(summaries, PredictionSummary{
						UID:       session.UID,
						Timestamp: session.Timestamp,
					})
					break
				}
			}
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UID < summaries[j].UID
	})
	return summaries, nil
}

func marshalDetections(detections []Detection) []types.AttributeValue {
	list := make([]types.AttributeValue, 0, len(detections))
	for _, d := range detections {
		box := make([]types.AttributeValue, 0, len(d.Box))
		for _, v := range d.Box {
			box = append(box, &types.AttributeValueMemberN{Value: formatDecimal(v)})
		}
		list = append(list, &types.AttributeValueMemberM{
			Value: map[string]types.AttributeValue{
				"label": &types.AttributeValueMemberS{Value: d.Label},
				"score": &types.AttributeValueMemberN{Value: formatDecimal(d.Score)},
				"box":   &types.AttributeValueMemberL{Value: box},
			},
		})
	}
	return list
}

func unmarshalSession(item map[string]types.AttributeValue) *PredictionSession {
	session := &PredictionSession{
		UID:            attrString(item, "uid"),
		OriginalImage:  attrString(item, "original_image"),
		PredictedImage: attrString(item, "predicted_image"),
		ChatID:         attrString(item, "chat_id"),
		Detections:     []Detection{},
	}
	if ts, err := time.Parse(time.RFC3339Nano, attrString(item, "timestamp")); err == nil {
		session.Timestamp = ts
	}

	list, ok := item["detections"].(*types.AttributeValueMemberL)
	if !ok {
		return session
	}
	for _, av := range list.Value {
		m, ok := av.(*types.AttributeValueMemberM)
		if !ok {
			continue
		}
		d := Detection{
			PredictionUID: session.UID,
			Label:         attrString(m.Value, "label"),
			Score:         attrNumber(m.Value, "score"),
		}
		if boxList, ok := m.Value["box"].(*types.AttributeValueMemberL); ok {
			for _, b := range boxList.Value {
				if n, ok := b.(*types.AttributeValueMemberN); ok {
					v, _ := strconv.ParseFloat(n.Value, 64)
					d.Box = append(d.Box, v)
				}
			}
		}
		session.Detections = append(session.Detections, d)
	}
	return session
}

func attrString(item map[string]types.AttributeValue, key string) string {
	if s, ok := item[key].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func attrNumber(item map[string]types.AttributeValue, key string) float64 {
	if n, ok := item[key].(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseFloat(n.Value, 64)
		return v
	}
	return 0
}

// formatDecimal renders a float as the shortest decimal string that parses
// back to the same value.
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
