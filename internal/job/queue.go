package job

import "context"

// Handler 处理队列中取出的任务 ID，返回错误时由队列决定是否重投。
type Handler func(ctx context.Context, jobID string) error

// Producer 向队列投递任务。
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer 从队列消费任务，阻塞直到 ctx 结束或出现不可恢复的错误。
type Consumer interface {
	Consume(ctx context.Context, workers int, handler Handler) error
}

// Queue 同时具备投递与消费能力。
type Queue interface {
	Producer
	Consumer
}
