package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// headerJobName — имя задания в заголовках сообщения
	headerJobName = "x-job-name"
	// headerAttempt — номер попытки доставки в заголовках сообщения
	headerAttempt = "x-attempt"

	// failedSuffix — суффикс имени очереди неуспешных заданий
	failedSuffix = ".failed"

	connectRetries = 10
	connectDelay   = 5 * time.Second
)

// AMQPConfig — параметры подключения к RabbitMQ.
type AMQPConfig struct {
	// URL — адрес брокера (FP_QUEUE_URL)
	URL string
	// QueueName — имя основной очереди (FP_QUEUE_NAME)
	QueueName string
	// JobName — имя задания в заголовках сообщений (FP_JOB_NAME)
	JobName string
	// FailedRetention — максимум записей в очереди неуспешных заданий
	FailedRetention int
	// Retry — политика повторов при ошибках обработчика
	Retry RetryPolicy
}

// connectWithRetry подключается к RabbitMQ с повторами.
// Брокер может стартовать позже сервиса, поэтому несколько
// неудачных попыток подряд — штатная ситуация.
func connectWithRetry(url string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 1; i <= connectRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("подключение к RabbitMQ установлено")
			return conn, nil
		}

		logger.Warn("не удалось подключиться к RabbitMQ",
			slog.Int("attempt", i),
			slog.Int("max_attempts", connectRetries),
			slog.String("error", err.Error()))
		if i < connectRetries {
			time.Sleep(connectDelay)
		}
	}

	return nil, fmt.Errorf("подключение к RabbitMQ не удалось после %d попыток: %w", connectRetries, err)
}

// declareQueues объявляет основную очередь и очередь неуспешных заданий.
// Обе очереди durable: задания переживают перезапуск брокера.
func declareQueues(ch *amqp.Channel, queueName string, failedRetention int) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("ошибка объявления очереди %s: %w", queueName, err)
	}

	// Очередь неуспешных заданий ограничена по длине:
	// при переполнении брокер выбрасывает самые старые записи.
	_, err = ch.QueueDeclare(
		queueName+failedSuffix,
		true,
		false,
		false,
		false,
		amqp.Table{"x-max-length": int32(failedRetention)},
	)
	if err != nil {
		return fmt.Errorf("ошибка объявления очереди %s%s: %w", queueName, failedSuffix, err)
	}

	return nil
}

// publishJob публикует задание в указанную очередь с персистентной доставкой.
func publishJob(ctx context.Context, ch *amqp.Channel, queueName string, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задания: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Headers: amqp.Table{
				headerJobName: job.Name,
				headerAttempt: int32(job.Attempt),
			},
		})
	if err != nil {
		return fmt.Errorf("ошибка публикации задания: %w", err)
	}
	return nil
}

// AMQPProducer — публикация заданий в RabbitMQ.
type AMQPProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     AMQPConfig
	logger  *slog.Logger
}

// NewAMQPProducer подключается к брокеру и объявляет очереди.
func NewAMQPProducer(cfg AMQPConfig, logger *slog.Logger) (*AMQPProducer, error) {
	log := logger.With(slog.String("component", "amqp-producer"))

	conn, err := connectWithRetry(cfg.URL, log)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала: %w", err)
	}

	if err := declareQueues(ch, cfg.QueueName, cfg.FailedRetention); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("очередь заданий готова", slog.String("queue", cfg.QueueName))

	return &AMQPProducer{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  log,
	}, nil
}

// Enqueue публикует ровно одно задание обработки для записи файла.
func (p *AMQPProducer) Enqueue(ctx context.Context, fileID int64) error {
	job := Job{Name: p.cfg.JobName, FileID: fileID, Attempt: 1}

	if err := publishJob(ctx, p.channel, p.cfg.QueueName, job); err != nil {
		return err
	}

	p.logger.Debug("задание опубликовано",
		slog.Int64("file_id", fileID),
		slog.String("job", p.cfg.JobName))
	return nil
}

// CheckReady проверяет состояние соединения с брокером.
// Реализует интерфейс handlers.ReadinessChecker.
func (p *AMQPProducer) CheckReady() (status string, message string) {
	if p.conn == nil || p.conn.IsClosed() {
		return "fail", "соединение с RabbitMQ закрыто"
	}
	return "ok", "соединение активно"
}

// Close закрывает канал и соединение.
func (p *AMQPProducer) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AMQPConsumer — получение заданий из RabbitMQ и передача обработчику.
type AMQPConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     AMQPConfig
	logger  *slog.Logger
}

// NewAMQPConsumer подключается к брокеру, объявляет очереди и
// ограничивает prefetch одним сообщением: воркер обрабатывает
// задания строго по одному.
func NewAMQPConsumer(cfg AMQPConfig, logger *slog.Logger) (*AMQPConsumer, error) {
	log := logger.With(slog.String("component", "amqp-consumer"))

	conn, err := connectWithRetry(cfg.URL, log)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала: %w", err)
	}

	if err := declareQueues(ch, cfg.QueueName, cfg.FailedRetention); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("ошибка установки QoS: %w", err)
	}

	return &AMQPConsumer{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  log,
	}, nil
}

// Run блокируется до отмены ctx или закрытия канала брокером.
// Подтверждение (ack) отправляется только после завершения обработчика:
// при падении воркера брокер вернёт задание в очередь.
func (c *AMQPConsumer) Run(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.cfg.QueueName,
		"",    // consumer tag
		false, // autoAck — подтверждаем вручную
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("ошибка регистрации consumer: %w", err)
	}

	c.logger.Info("ожидание заданий", slog.String("queue", c.cfg.QueueName))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("канал очереди %s закрыт брокером", c.cfg.QueueName)
			}
			c.handleDelivery(ctx, msg, handler)
		}
	}
}

// handleDelivery обрабатывает одно сообщение и решает его судьбу:
// ack при успехе, повтор по политике при ошибке, очередь failed
// при исчерпании попыток или постоянной ошибке.
func (c *AMQPConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	job, err := c.decodeJob(msg)
	if err != nil {
		// Некорректный payload повторять бессмысленно
		c.logger.Error("не удалось разобрать задание", slog.String("error", err.Error()))
		c.moveToFailed(ctx, msg, job)
		return
	}

	herr := handler(ctx, job)
	if herr == nil {
		if err := msg.Ack(false); err != nil {
			c.logger.Error("ошибка подтверждения задания", slog.String("error", err.Error()))
		}
		return
	}

	if IsPermanent(herr) || c.cfg.Retry.Exhausted(job.Attempt) {
		c.logger.Warn("задание отправлено в очередь failed",
			slog.Int64("file_id", job.FileID),
			slog.Int("attempt", job.Attempt),
			slog.String("error", herr.Error()))
		c.moveToFailed(ctx, msg, job)
		return
	}

	// Повтор: публикуем следующую попытку с задержкой и подтверждаем
	// исходное сообщение. Задержка блокирует воркер — prefetch 1
	// гарантирует, что других заданий он в это время не держит.
	delay := c.cfg.Retry.Delay(job.Attempt)
	c.logger.Warn("повтор задания после ошибки",
		slog.Int64("file_id", job.FileID),
		slog.Int("attempt", job.Attempt),
		slog.Duration("delay", delay),
		slog.String("error", herr.Error()))

	select {
	case <-ctx.Done():
		// Завершение работы: nack с requeue, задание вернётся в очередь
		msg.Nack(false, true)
		return
	case <-time.After(delay):
	}

	retry := Job{Name: job.Name, FileID: job.FileID, Attempt: job.Attempt + 1}
	if err := publishJob(ctx, c.channel, c.cfg.QueueName, retry); err != nil {
		c.logger.Error("не удалось опубликовать повтор, задание возвращено в очередь",
			slog.String("error", err.Error()))
		msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("ошибка подтверждения задания", slog.String("error", err.Error()))
	}
}

// decodeJob разбирает payload и заголовки сообщения.
func (c *AMQPConsumer) decodeJob(msg amqp.Delivery) (Job, error) {
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return Job{}, fmt.Errorf("payload не является JSON {\"fileId\": N}: %w", err)
	}

	job.Name = c.cfg.JobName
	if name, ok := msg.Headers[headerJobName].(string); ok && name != "" {
		job.Name = name
	}

	job.Attempt = 1
	switch v := msg.Headers[headerAttempt].(type) {
	case int32:
		job.Attempt = int(v)
	case int64:
		job.Attempt = int(v)
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}

	return job, nil
}

// moveToFailed переносит сообщение в очередь неуспешных заданий и
// подтверждает оригинал. При ошибке публикации сообщение возвращается
// в основную очередь.
func (c *AMQPConsumer) moveToFailed(ctx context.Context, msg amqp.Delivery, job Job) {
	failed := c.cfg.QueueName + failedSuffix

	err := c.channel.PublishWithContext(ctx,
		"",
		failed,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         msg.Body,
			Headers: amqp.Table{
				headerJobName: job.Name,
				headerAttempt: int32(job.Attempt),
			},
		})
	if err != nil {
		c.logger.Error("не удалось перенести задание в очередь failed",
			slog.String("error", err.Error()))
		msg.Nack(false, true)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("ошибка подтверждения задания", slog.String("error", err.Error()))
	}
}

// Close закрывает канал и соединение.
func (c *AMQPConsumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
