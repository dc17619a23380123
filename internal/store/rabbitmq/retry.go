package rabbitmq

import (
	"context"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const retryCountHeader = "x-retry-count"

// RetryCount reports how many times a delivery has already been through the retry queue.
func RetryCount(d amqp.Delivery) int {
	switch v := d.Headers[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// Retry republishes a delivery onto the retry queue; its TTL dead-letters it back
// to the main queue once delay has passed.
func Retry(ctx context.Context, ch *amqp.Channel, queue string, d amqp.Delivery, delay time.Duration) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(RetryCount(d) + 1)

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(cctx,
		"",
		queue+".retry",
		false,
		false,
		amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Body:         d.Body,
			Headers:      headers,
			Timestamp:    d.Timestamp,
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		},
	)
}
