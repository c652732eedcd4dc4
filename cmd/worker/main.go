package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"example/staging-api/app"
	"example/staging-api/app/config"
	"example/staging-api/app/models"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

func main() {
	baseCtx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.QueueURL == "" {
		log.Fatal("QUEUE_URL environment variable is required")
	}

	app.MustInitDB()

	awsCfg, err := awsconfig.LoadDefaultConfig(baseCtx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	log.Printf("Worker started, listening on SQS queue: %s", cfg.QueueURL)

	for {
		// Long-poll SQS
		recvCtx, cancel := context.WithTimeout(baseCtx, 30*time.Second)
		resp, err := sqsClient.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            &cfg.QueueURL,
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,  // enable long polling
			VisibilityTimeout:   300, // seconds; must exceed max job duration
		})
		cancel()

		if err != nil {
			log.Printf("ReceiveMessage error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		if len(resp.Messages) == 0 {
			time.Sleep(2 * time.Second)
			continue
		}

		for _, m := range resp.Messages {
			if m.Body == nil {
				log.Printf("received message with empty body, skipping: %#v", m)
				continue
			}

			var job models.JobMessage
			if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
				log.Printf("failed to unmarshal job message: %v, body=%s", err, *m.Body)
				// Delete to avoid a poison pill retrying forever.
				deleteMessage(sqsClient, cfg.QueueURL, m)
				continue
			}

			log.Printf("Received job: id=%s user=%s kind=%s", job.JobID, job.UserID, job.Kind)

			jobCtx, jobCancel := context.WithTimeout(baseCtx, 4*time.Minute)
			err := app.ProcessGenerationJob(jobCtx, cfg, job)
			jobCancel()

			if err != nil {
				log.Printf("error processing job id=%s user=%s: %v", job.JobID, job.UserID, err)
				// Leave the message; it becomes visible again after the
				// visibility timeout and SQS retries it.
				continue
			}

			deleteMessage(sqsClient, cfg.QueueURL, m)
		}
	}
}

func deleteMessage(sqsClient *sqs.Client, queueURL string, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := sqsClient.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      &queueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Printf("failed to delete SQS message: %v", err)
	}
}
