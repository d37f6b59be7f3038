// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package validation

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	FarmerID string  `validate:"required"`
	Liters   float64 `validate:"gt=0,lte=10000"`
	Count    int     `validate:"min=1,max=1000"`
}

func TestValidateStructPasses(t *testing.T) {
	if err := ValidateStruct(&sampleRequest{FarmerID: "f-1", Liters: 10.5, Count: 10}); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateStructCollectsAllFailures(t *testing.T) {
	err := ValidateStruct(&sampleRequest{Liters: -1, Count: 0})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if len(err.Fields) != 3 {
		t.Fatalf("failed fields = %d, want 3: %v", len(err.Fields), err)
	}
	if !strings.Contains(err.Error(), "FarmerID is required") {
		t.Errorf("Error() = %q, missing required message", err.Error())
	}
}

func TestToAPIErrorFormat(t *testing.T) {
	err := ValidateStruct(&sampleRequest{FarmerID: "f-1", Liters: 0, Count: 5})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 1 {
		t.Fatalf("Details.fields = %v", apiErr.Details["fields"])
	}
	if fields[0]["field"] != "Liters" {
		t.Errorf("field = %v, want Liters", fields[0]["field"])
	}
}
