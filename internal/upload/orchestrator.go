// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package upload orchestrates the fast upload pipeline: compress the
// photo, consult the verification cache, then either upload alone (cache
// hit) or run upload and AI verification concurrently (cache miss),
// persist the outcome, and track per-attempt analytics.
//
// Failure semantics: a failed AI verification fails the whole attempt
// even when the upload itself succeeded. Every attempt, hit or miss,
// success or failure, is tracked exactly once.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dairystack/milkcheck/internal/analytics"
	"github.com/dairystack/milkcheck/internal/cache"
	"github.com/dairystack/milkcheck/internal/gemini"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/metrics"
	"github.com/dairystack/milkcheck/internal/models"
	"github.com/dairystack/milkcheck/internal/optimize"
	"github.com/dairystack/milkcheck/internal/storage"
)

// Options identify one upload attempt.
type Options struct {
	FarmerID       string
	CollectionID   string
	CollectorID    string
	RecordedLiters float64
	OnProgress     func(models.UploadProgress)
}

// Recorder is the durable sink for verification outcomes. The database
// package implements it.
type Recorder interface {
	InsertVerification(ctx context.Context, collectionID string, recordedLiters float64, analysis *models.VerificationAnalysis) (*models.VerificationRecord, error)
	LinkVerification(ctx context.Context, collectionID string, verificationID uuid.UUID) error
	UpsertCollection(ctx context.Context, id, farmerID, collectorID string, liters float64, photoURL, storagePath string) error
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	optimizer optimize.Optimizer
	store     storage.ObjectStore
	verifier  gemini.Verifier
	cache     *cache.VerificationCache
	tracker   *analytics.Tracker
	recorder  Recorder
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates an Orchestrator. recorder may be nil, in which case
// outcomes are not persisted (useful for dry runs and tests).
func New(optimizer optimize.Optimizer, store storage.ObjectStore, verifier gemini.Verifier, vc *cache.VerificationCache, tracker *analytics.Tracker, recorder Recorder) *Orchestrator {
	return &Orchestrator{
		optimizer: optimizer,
		store:     store,
		verifier:  verifier,
		cache:     vc,
		tracker:   tracker,
		recorder:  recorder,
		now:       time.Now,
		logger:    logging.With().Str("component", "upload").Logger(),
	}
}

// FastUploadAndVerify runs the full pipeline for one photo. It never
// returns an error; failures are reported inside the result so callers
// and the analytics trail see the same outcome.
func (o *Orchestrator) FastUploadAndVerify(ctx context.Context, image []byte, opts Options) *models.FastUploadResult {
	start := o.now()
	var timings models.Timings

	fail := func(stage string, cacheHit bool, err error) *models.FastUploadResult {
		timings.Total = o.sinceMS(start)
		o.progress(opts, models.StageError, 0, err.Error())
		o.track(opts, timings, int64(len(image)), 0, 0, cacheHit, false, err.Error())
		metrics.RecordAttempt(false, cacheHit)
		o.logger.Warn().Err(err).
			Str("stage", stage).
			Str("collection_id", opts.CollectionID).
			Msg("upload attempt failed")
		return &models.FastUploadResult{
			Success: false,
			Error:   err.Error(),
			Timings: timings,
		}
	}

	// Stage 1: compress (0-20%)
	o.progress(opts, models.StageCompressing, 10, "Optimizing image...")
	compressionStart := o.now()
	optimized, err := o.optimizer.Optimize(image)
	if err != nil {
		return fail("compress", false, fmt.Errorf("optimize image: %w", err))
	}
	timings.Compression = o.sinceMS(compressionStart)
	o.progress(opts, models.StageCompressing, 20,
		fmt.Sprintf("Compressed %.0f%%", optimized.CompressionRatio))

	key := cache.Key(optimized.Hash, opts.RecordedLiters)
	if cached := o.cache.Get(key); cached != nil {
		metrics.RecordCacheLookup(true)
		return o.completeCacheHit(ctx, image, optimized, cached, opts, start, timings, fail)
	}
	metrics.RecordCacheLookup(false)

	// Stages 2 and 3: upload (30-60%) and verification (60-90%) run
	// concurrently; either failure cancels the other.
	o.progress(opts, models.StageUploading, 30, "Uploading and analyzing...")
	parallelStart := o.now()

	var uploadResult *storage.UploadResult
	var analysis *models.VerificationAnalysis
	var uploadMS, verifyMS int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uploadStart := o.now()
		res, err := o.store.Upload(gctx, storage.ObjectKey(opts.FarmerID, opts.CollectionID, parallelStart, ".jpg"), optimized.Data, optimized.ContentType)
		uploadMS = o.sinceMS(uploadStart)
		if err != nil {
			return fmt.Errorf("upload photo: %w", err)
		}
		uploadResult = res
		metrics.ObserveStage("upload", time.Duration(uploadMS)*time.Millisecond)
		return nil
	})
	g.Go(func() error {
		verifyStart := o.now()
		res, err := o.verifier.VerifyCollectionPhoto(gctx, optimized.Data, optimized.ContentType, opts.RecordedLiters)
		verifyMS = o.sinceMS(verifyStart)
		if err != nil {
			if kind := gemini.KindOf(err); kind != "" {
				metrics.VerificationErrorsTotal.WithLabelValues(string(kind)).Inc()
			}
			return fmt.Errorf("verification failed: %w", err)
		}
		analysis = res
		metrics.ObserveStage("verification", time.Duration(verifyMS)*time.Millisecond)
		return nil
	})

	if err := g.Wait(); err != nil {
		timings.Upload = uploadMS
		timings.Verification = verifyMS
		return fail("parallel", false, err)
	}
	timings.Upload = uploadMS
	timings.Verification = verifyMS
	o.progress(opts, models.StageVerifying, 90, "AI analysis complete")

	// Write-through before persistence so a retry is a cache hit even if
	// the database write below fails
	o.cache.Set(key, opts.RecordedLiters, *analysis)

	// Stage 4: persist (90-100%)
	o.progress(opts, models.StageSaving, 95, "Saving results...")
	if err := o.persist(ctx, uploadResult, analysis, opts); err != nil {
		return fail("save", false, err)
	}

	timings.Total = o.sinceMS(start)
	o.progress(opts, models.StageComplete, 100, "Complete!")
	o.track(opts, timings, int64(len(image)), optimized.OptimizedSize, optimized.CompressionRatio, false, true, "")
	metrics.RecordAttempt(true, false)
	metrics.VerificationResultsTotal.WithLabelValues(statusOf(analysis)).Inc()

	return &models.FastUploadResult{
		Success:      true,
		UploadURL:    uploadResult.URL,
		StoragePath:  uploadResult.Path,
		Verification: analysis,
		Timings:      timings,
	}
}

// completeCacheHit finishes an attempt whose verification was answered
// from the cache: the photo still uploads, but no AI call happens and
// upload/verification timings are reported as zero. Failures here are
// still cache-hit attempts and are tracked as such.
func (o *Orchestrator) completeCacheHit(ctx context.Context, image []byte, optimized *optimize.Optimized, cached *models.VerificationAnalysis, opts Options, start time.Time, timings models.Timings, fail func(string, bool, error) *models.FastUploadResult) *models.FastUploadResult {
	o.logger.Debug().Str("collection_id", opts.CollectionID).Msg("verification cache hit")

	uploadResult, err := o.store.Upload(ctx, storage.ObjectKey(opts.FarmerID, opts.CollectionID, o.now(), ".jpg"), optimized.Data, optimized.ContentType)
	if err != nil {
		return fail("upload", true, fmt.Errorf("upload photo: %w", err))
	}

	if err := o.persist(ctx, uploadResult, cached, opts); err != nil {
		return fail("save", true, err)
	}

	timings.Total = o.sinceMS(start)
	o.progress(opts, models.StageComplete, 100, "Verified (cached)")
	o.track(opts, timings, int64(len(image)), optimized.OptimizedSize, optimized.CompressionRatio, true, true, "")
	metrics.RecordAttempt(true, true)

	return &models.FastUploadResult{
		Success:      true,
		UploadURL:    uploadResult.URL,
		StoragePath:  uploadResult.Path,
		Verification: cached,
		Timings:      timings,
	}
}

// persist stores the verification row and links it to the collection.
// A missing collection row leaves the verification record orphaned; that
// is logged and tolerated so the attempt still succeeds.
func (o *Orchestrator) persist(ctx context.Context, uploadResult *storage.UploadResult, analysis *models.VerificationAnalysis, opts Options) error {
	if o.recorder == nil {
		return nil
	}

	if err := o.recorder.UpsertCollection(ctx, opts.CollectionID, opts.FarmerID, opts.CollectorID, opts.RecordedLiters, uploadResult.URL, uploadResult.Path); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}

	record, err := o.recorder.InsertVerification(ctx, opts.CollectionID, opts.RecordedLiters, analysis)
	if err != nil {
		return fmt.Errorf("save verification: %w", err)
	}

	if err := o.recorder.LinkVerification(ctx, opts.CollectionID, record.ID); err != nil {
		// The verification row survives unlinked; a later reconciliation
		// can find it by collection_id
		o.logger.Warn().Err(err).
			Str("collection_id", opts.CollectionID).
			Str("verification_id", record.ID.String()).
			Msg("failed to link verification to collection")
	}
	return nil
}

// track records the attempt in the analytics buffer exactly once.
func (o *Orchestrator) track(opts Options, timings models.Timings, imageSize, optimizedSize int64, ratio float64, cacheHit, success bool, errMsg string) {
	if o.tracker == nil {
		return
	}
	o.tracker.Track(models.PerformanceMetric{
		Timestamp:           o.now(),
		CompressionTime:     timings.Compression,
		UploadDuration:      timings.Upload,
		VerificationLatency: timings.Verification,
		TotalTime:           timings.Total,
		CacheHit:            cacheHit,
		ImageSize:           imageSize,
		OptimizedSize:       optimizedSize,
		CompressionRatio:    ratio,
		CollectionID:        opts.CollectionID,
		FarmerID:            opts.FarmerID,
		Success:             success,
		Error:               errMsg,
	})
}

func (o *Orchestrator) progress(opts Options, stage models.UploadStage, pct float64, msg string) {
	if opts.OnProgress == nil {
		return
	}
	opts.OnProgress(models.UploadProgress{Stage: stage, Progress: pct, Message: msg})
}

func (o *Orchestrator) sinceMS(t time.Time) int64 {
	return o.now().Sub(t).Milliseconds()
}

func statusOf(analysis *models.VerificationAnalysis) string {
	if analysis.VerificationPassed {
		return models.StatusVerified
	}
	return models.StatusFlagged
}
