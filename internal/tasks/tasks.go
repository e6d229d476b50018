package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/email"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
)

// TaskType defines the type of a background task.
const (
	TypeNotification = "notification:email"
	TypeImageProcess = "image:process"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
)

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues notification and image tasks on behalf of the services.
type Dispatcher struct {
	client Enqueuer
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// Notify enqueues an e-mail notification.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	task := asynq.NewTask(TypeNotification, payload)
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(time.Minute)); err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", n.Kind, err)
	}
	return nil
}

// ProcessImage enqueues the normalisation of an uploaded image.
func (d *Dispatcher) ProcessImage(ctx context.Context, key string) error {
	payload, err := json.Marshal(ImageTaskPayload{Key: key})
	if err != nil {
		return fmt.Errorf("failed to marshal image task payload: %w", err)
	}
	task := asynq.NewTask(TypeImageProcess, payload)
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueImages), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("failed to enqueue image task for %s: %w", key, err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	storage     storage.IImageStorage
	users       repository.IUserRepository
	contractors repository.IContractorRepository
	properties  repository.IPropertyRepository
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	imageStorage storage.IImageStorage,
	users repository.IUserRepository,
	contractors repository.IContractorRepository,
	properties repository.IPropertyRepository,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		storage:     imageStorage,
		users:       users,
		contractors: contractors,
		properties:  properties,
	}
}

// SetupServer configures an Asynq server and the mux routing task types to handlers.
// With imagesOnly the server consumes the images queue alone, so resizing can run on
// dedicated workers.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, imagesOnly bool) (*asynq.Server, *asynq.ServeMux) {
	queues := map[string]int{
		QueueCritical: 6,
		QueueDefault:  3,
		QueueImages:   2,
	}
	if imagesOnly {
		queues = map[string]int{QueueImages: 1}
	}
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("ERROR: task %s failed: %v (payload %s)", task.Type(), err, string(task.Payload()))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
	if !imagesOnly {
		mux.HandleFunc(TypeNotification, processor.HandleNotificationTask)
	}
	return srv, mux
}
