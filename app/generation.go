// Package app proxies generation requests to the opaque provider, gated by
// the credit ledger.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"example/staging-api/app/config"
	"example/staging-api/app/models"
	"example/staging-api/auth"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var httpc = &http.Client{Timeout: 60 * time.Second}

// Every generation action costs one credit, image or video alike.
const generationCreditCost = 1

type imageResult struct {
	ImageURL string `json:"image_url"`
}

type videoResult struct {
	VideoURL string `json:"video_url"`
}

// GenerateImage runs a synchronous image generation for the authenticated
// user. The credit is deducted up front; if the provider call fails the
// credit is granted back so the failure does not partially apply.
func GenerateImage(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil || cfg.Gen.BaseURL == "" {
		log.Printf("generation config missing: err=%v base_url=%t", err, cfg != nil && cfg.Gen.BaseURL != "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 90*time.Second)
	defer cancel()

	ok, err = DeductCredits(ctx, claims.Subject, generationCreditCost)
	if err != nil {
		log.Printf("deduct failed user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check credits"})
		return
	}
	if !ok {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":       "insufficient credits",
			"upgrade_url": strings.TrimRight(cfg.Stripe.FrontendURL, "/") + "/upgrade",
		})
		return
	}

	payload := map[string]any{
		"prompt":       req.Prompt,
		"image_urls":   req.ReferenceImages,
		"aspect_ratio": req.AspectRatio,
	}

	var out imageResult
	if err := postProviderJSON(ctx, cfg, "/v1/images", payload, &out); err != nil {
		log.Printf("image generation failed user=%s: %v", claims.Subject, err)
		// Give the credit back; the user got nothing for it.
		refundCredit(ctx, claims.Subject)
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"image_url": out.ImageURL})
}

// GenerateVideo deducts a credit, records a job row and enqueues the work
// for the worker. Clients poll /jobs/:jobid for the result.
func GenerateVideo(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil || cfg.QueueURL == "" {
		log.Printf("video generation config missing: err=%v queue_url=%t", err, cfg != nil && cfg.QueueURL != "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 25*time.Second)
	defer cancel()

	ok, err = DeductCredits(ctx, claims.Subject, generationCreditCost)
	if err != nil {
		log.Printf("deduct failed user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check credits"})
		return
	}
	if !ok {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":       "insufficient credits",
			"upgrade_url": strings.TrimRight(cfg.Stripe.FrontendURL, "/") + "/upgrade",
		})
		return
	}

	jobID := uuid.NewString()
	if err := createGenerationJob(ctx, jobID, claims.Subject, "video"); err != nil {
		log.Printf("failed to create job for user=%s: %v", claims.Subject, err)
		refundCredit(ctx, claims.Subject)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	msg := models.JobMessage{
		JobID:       jobID,
		UserID:      claims.Subject,
		Kind:        "video",
		Prompt:      req.Prompt,
		ImageURLs:   req.ReferenceImages,
		AspectRatio: req.AspectRatio,
	}
	if err := enqueueJob(ctx, cfg.QueueURL, msg); err != nil {
		log.Printf("failed to enqueue job=%s user=%s: %v", jobID, claims.Subject, err)
		_ = setJobResult(ctx, jobID, models.JobFailed, "", "enqueue failed")
		refundCredit(ctx, claims.Subject)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"request_id": jobID,
		"job_id":     jobID,
	})
}

// refundCredit compensates a deduction after a failed generation. The refund
// runs detached from the request context: the failure may be that very
// context dying, and the compensation has to land regardless.
func refundCredit(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := AddCredits(ctx, userID, generationCreditCost); err != nil {
		log.Printf("credit refund failed user=%s: %v", userID, err)
	}
}

// GetJobStatus returns status and result for one of the caller's jobs.
func GetJobStatus(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	jobID := c.Param("jobid")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := FindJobStatus(ctx, jobID, claims.Subject)
	if err != nil {
		if errors.Is(err, errJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": status})
}

func enqueueJob(ctx context.Context, queueURL string, msg models.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	client := sqs.NewFromConfig(awsCfg)

	_, err = client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &queueURL,
		MessageBody: aws.String(string(body)),
	})
	return err
}

type providerError struct {
	Status int
	Body   string
}

func (e providerError) Error() string { return fmt.Sprintf("provider %d: %s", e.Status, e.Body) }

// postProviderJSON posts to the generation provider with a basic retry on
// 429/5xx, mirroring how the provider expects clients to behave.
func postProviderJSON(ctx context.Context, cfg *config.Config, path string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(cfg.Gen.BaseURL, "/") + path

	var last providerError
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.Gen.APIKey != "" {
			req.Header.Set("Authorization", "Key "+cfg.Gen.APIKey)
		}

		res, err := httpc.Do(req)
		if err != nil {
			return err
		}

		if res.StatusCode == http.StatusOK {
			err := json.NewDecoder(res.Body).Decode(v)
			res.Body.Close()
			return err
		}

		var msg struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&msg)
		res.Body.Close()
		last = providerError{Status: res.StatusCode, Body: msg.Error}

		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			time.Sleep(time.Duration(250*(attempt+1)) * time.Millisecond)
			continue
		}
		break
	}
	return last
}

// ProcessGenerationJob runs one queued job to completion; called by the
// worker. Provider failures mark the job failed and refund the credit.
func ProcessGenerationJob(ctx context.Context, cfg *config.Config, msg models.JobMessage) error {
	if err := setJobResult(ctx, msg.JobID, models.JobRunning, "", ""); err != nil {
		return err
	}

	payload := map[string]any{
		"prompt":       msg.Prompt,
		"image_urls":   msg.ImageURLs,
		"aspect_ratio": msg.AspectRatio,
	}

	var out videoResult
	if err := postProviderJSON(ctx, cfg, "/v1/videos", payload, &out); err != nil {
		log.Printf("video generation failed job=%s user=%s: %v", msg.JobID, msg.UserID, err)
		if jobErr := setJobResult(ctx, msg.JobID, models.JobFailed, "", err.Error()); jobErr != nil {
			return jobErr
		}
		refundCredit(ctx, msg.UserID)
		return nil
	}

	return setJobResult(ctx, msg.JobID, models.JobCompleted, out.VideoURL, "")
}
