package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeReservationExpiry = "reservation:expire"
)

// Queue names and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Who asked for an expiry sweep.
const (
	TriggerScheduler  = "scheduler"
	TriggerCLI        = "cli"
	TriggerServiceAPI = "service_api"
)

// sweepTimeout bounds one expiry sweep.
const sweepTimeout = 10 * time.Minute

// RedisClientOpt derives asynq connection options from an existing Redis client.
func RedisClientOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisClientOpt(rdb))
}

// ExpiryTaskPayload defines the data for the reservation expiry task.
type ExpiryTaskPayload struct {
	TriggeredBy string    `json:"triggered_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewExpiryTask builds a reservation expiry sweep task.
func NewExpiryTask(triggeredBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(ExpiryTaskPayload{TriggeredBy: triggeredBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal expiry task payload: %w", err)
	}
	return asynq.NewTask(TypeReservationExpiry, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(sweepTimeout),
	), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg           *config.Config
	expiryService services.IExpiryService
}

func NewTaskProcessor(cfg *config.Config, expiryService services.IExpiryService) *TaskProcessor {
	return &TaskProcessor{
		cfg:           cfg,
		expiryService: expiryService,
	}
}

// SetupServer configures an Asynq server and the mux with every handler registered.
// The caller starts it with srv.Start(mux) and stops it with srv.Shutdown.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		RedisClientOpt(rdb),
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReservationExpiry, processor.HandleReservationExpiryTask)
	fmt.Println("Registered reservation expiry task handler.")

	return srv, mux
}

// NewScheduler registers the daily expiry sweep on the configured cron spec. Several scheduler
// instances may run; the task is unique for an hour so a sweep is enqueued once per tick.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisClientOpt(rdb), &asynq.SchedulerOpts{
		Location: time.UTC,
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			log.Printf("Scheduler: failed to enqueue %s: %v", task.Type(), err)
		},
	})

	task, err := NewExpiryTask(TriggerScheduler)
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(cfg.ExpirySweepCron, task, asynq.Unique(time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to register expiry sweep with cron spec %q: %w", cfg.ExpirySweepCron, err)
	}
	log.Printf("Reservation expiry sweep scheduled (%s), entry %s", cfg.ExpirySweepCron, entryID)
	return scheduler, nil
}

// --- Task Handlers ---

// HandleReservationExpiryTask reclaims lapsed deposit reservations. The sweep is idempotent,
// so a failed run is left to asynq to retry.
func (p *TaskProcessor) HandleReservationExpiryTask(ctx context.Context, t *asynq.Task) error {
	var payload ExpiryTaskPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal expiry task payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	log.Printf("Starting reservation expiry task (triggered by %q)...", payload.TriggeredBy)
	count, err := p.expiryService.ExpireReservations(ctx)
	if err != nil {
		log.Printf("Reservation expiry task failed after releasing %d reservations: %v", count, err)
		return err
	}
	log.Printf("Reservation expiry task finished. Released %d reservations.", count)
	return nil
}
