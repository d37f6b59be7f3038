// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dairystack/milkcheck/internal/upload"
	"github.com/dairystack/milkcheck/internal/validation"
)

// defaultMaxUploadBytes bounds the multipart body when the server config
// leaves the limit unset.
const defaultMaxUploadBytes = 25 << 20

// photoUploadRequest is the validated shape of the multipart form fields.
type photoUploadRequest struct {
	FarmerID       string  `validate:"required,max=128"`
	CollectorID    string  `validate:"required,max=128"`
	RecordedLiters float64 `validate:"gt=0,lte=10000"`
}

// UploadPhoto handles POST /api/v1/collections/{collectionID}/photo.
//
// Multipart form: "photo" (image file), "farmer_id", "collector_id",
// "recorded_liters". The response is the full pipeline result; a failed
// verification is reported with 200 and Success=false so clients see the
// same shape for every terminal outcome.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	collectionID := chi.URLParam(r, "collectionID")
	if collectionID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_COLLECTION_ID", "collection ID is required", nil)
		return
	}

	maxBytes := h.cfg.Server.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "photo exceeds the upload size limit", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_FORM", "request is not a valid multipart form", err)
		return
	}

	liters, ok := getFloatParam(r.FormValue("recorded_liters"))
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_LITERS", "recorded_liters must be a number", nil)
		return
	}

	req := photoUploadRequest{
		FarmerID:       r.FormValue("farmer_id"),
		CollectorID:    r.FormValue("collector_id"),
		RecordedLiters: liters,
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PHOTO", "photo file is required", nil)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "UNREADABLE_PHOTO", "failed to read photo data", err)
		return
	}

	result := h.uploader.FastUploadAndVerify(r.Context(), image, upload.Options{
		FarmerID:       req.FarmerID,
		CollectionID:   collectionID,
		CollectorID:    req.CollectorID,
		RecordedLiters: req.RecordedLiters,
	})

	respondData(w, http.StatusOK, result, start)
}
