package kinesis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/pkg/errors"
)

// ConvertFromKinesisRecord converts a Kinesis record carrying a DynamoDB
// stream change of the documents table into a change feed event. Changes
// that are not order lifecycle events yield (nil, nil).
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*changefeed.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, errors.Wrap(err, "unmarshal DynamoDB record")
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord maps one change of the documents table:
// an inserted order is OrderPlaced, a modified order whose status moved is
// OrderStatusChanged and a removed order is OrderDeleted.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*changefeed.Event, error) {
	if collectionOf(record) != repository.CollectionOrders {
		return nil, nil
	}
	at := record.Change.ApproximateCreationDateTime.Time
	if at.IsZero() {
		at = time.Now()
	}

	var (
		orderID   string
		eventType string
		payload   any
	)
	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert:
		o, err := decodeOrderImage(record.Change.NewImage)
		if err != nil {
			return nil, err
		}
		orderID, eventType = o.ID, order.EventOrderPlaced
		payload = order.OrderPlaced{
			OrderID:       o.ID,
			UserID:        o.UserID,
			DeviceID:      o.DeviceID,
			CustomerName:  o.CustomerName,
			CustomerEmail: o.CustomerEmail,
			Items:         o.Items,
			Total:         o.Total,
			PlacedAt:      o.CreatedAt,
		}
	case events.DynamoDBOperationTypeModify:
		newO, err := decodeOrderImage(record.Change.NewImage)
		if err != nil {
			return nil, err
		}
		if record.Change.OldImage != nil {
			oldO, err := decodeOrderImage(record.Change.OldImage)
			if err != nil {
				return nil, err
			}
			if oldO.Status == newO.Status {
				return nil, nil
			}
		}
		changedAt := at
		if newO.LastUpdated != nil {
			changedAt = *newO.LastUpdated
		}
		orderID, eventType = newO.ID, order.EventOrderStatusChanged
		payload = order.OrderStatusChanged{
			OrderID:     newO.ID,
			Status:      newO.Status,
			StatusIndex: newO.Status.Index(),
			UpdatedBy:   newO.UpdatedBy,
			ChangedAt:   changedAt,
		}
	case events.DynamoDBOperationTypeRemove:
		id := record.Change.Keys[store.DynamoSortKey].String()
		if id == "" {
			return nil, errors.New("removed record has no id")
		}
		orderID, eventType = id, order.EventOrderDeleted
		payload = order.OrderDeleted{OrderID: id, DeletedAt: at}
	default:
		return nil, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", eventType)
	}
	return &changefeed.Event{
		ID:            record.EventID,
		AggregateID:   orderID,
		AggregateType: order.AggregateType,
		EventType:     eventType,
		Data:          data,
		Timestamp:     at,
	}, nil
}

func collectionOf(record events.DynamoDBEventRecord) string {
	if v, ok := record.Change.Keys[store.DynamoPartitionKey]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

func decodeOrderImage(image map[string]events.DynamoDBAttributeValue) (*order.Order, error) {
	if image == nil {
		return nil, errors.New("DynamoDB image is nil")
	}
	rec := make(map[string]any, len(image))
	for name, av := range image {
		if name == store.DynamoPartitionKey {
			continue
		}
		v, err := attributeValue(av)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %s", name)
		}
		rec[name] = v
	}
	if _, ok := rec["id"]; !ok {
		rec["id"] = rec[store.DynamoSortKey]
	}
	delete(rec, store.DynamoSortKey)

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrap(err, "decode order image")
	}
	if o.ID == "" {
		return nil, errors.New("order image has no id")
	}
	return &o, nil
}

// attributeValue converts a stream attribute into its JSON equivalent.
func attributeValue(av events.DynamoDBAttributeValue) (any, error) {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String(), nil
	case events.DataTypeNumber:
		return json.Number(av.Number()), nil
	case events.DataTypeBoolean:
		return av.Boolean(), nil
	case events.DataTypeNull:
		return nil, nil
	case events.DataTypeStringSet:
		return av.StringSet(), nil
	case events.DataTypeNumberSet:
		out := make([]json.Number, 0, len(av.NumberSet()))
		for _, n := range av.NumberSet() {
			out = append(out, json.Number(n))
		}
		return out, nil
	case events.DataTypeList:
		out := make([]any, 0, len(av.List()))
		for _, item := range av.List() {
			v, err := attributeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case events.DataTypeMap:
		out := make(map[string]any, len(av.Map()))
		for k, item := range av.Map() {
			v, err := attributeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %d", av.DataType())
}

// BatchConvertFromKinesisEvent converts all records of a Kinesis event.
// Returns the converted events and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*changefeed.Event, []error) {
	var eventList []*changefeed.Event
	var errs []error

	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "record %s", record.EventID))
			continue
		}
		if event != nil {
			eventList = append(eventList, event)
		}
	}

	return eventList, errs
}
