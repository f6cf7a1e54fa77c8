package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 价格流的连接参数。
type RabbitMQConfig struct {
	URL     string
	Queue   string
	Durable bool
}

// RabbitMQ 将价格更新投递到队列，由问答服务消费后写入本地缓冲。
type RabbitMQ struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQ 创建 RabbitMQ 价格流实例。
func NewRabbitMQ(cfg RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "oracle.prices"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQ{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 实现 Sink。
func (q *RabbitMQ) Publish(ctx context.Context, update Update) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("序列化价格更新失败: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

// Recent 实现 Reader。队列不保留历史，请配合 Mirror 使用。
func (q *RabbitMQ) Recent(context.Context, int) ([]Update, error) {
	return nil, ErrUnsupported
}

// Mirror 持续消费队列并把更新写入 dst，直到 ctx 取消。
func (q *RabbitMQ) Mirror(ctx context.Context, dst Sink) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("RabbitMQ 消费通道已关闭")
			}
			var update Update
			if err := json.Unmarshal(msg.Body, &update); err == nil {
				_ = dst.Publish(ctx, update)
			}
			_ = msg.Ack(false)
		}
	}
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQ) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
