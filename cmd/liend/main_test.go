package main

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lienchain/core/types"
	"lienchain/native/conversion"
	"lienchain/native/mortgage"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string   { return s.evt.Type }
func (s stubEvent) Event() *types.Event { return s.evt }

func TestNoPriceSourceErrorNamesCollateral(t *testing.T) {
	_, err := noPriceSource{collateral: "CLT"}.CollateralPrice("CLT")
	if err == nil {
		t.Fatalf("expected an error from the placeholder price source")
	}
	if !strings.Contains(err.Error(), "CLT") {
		t.Fatalf("error %q does not name the collateral", err)
	}
}

func TestMetricsEmitterTracksQueueDepth(t *testing.T) {
	registry := conversion.NewRegistry()
	engine := conversion.NewEngine("CLT", mortgage.NewEngine(nil))
	if err := registry.Register(engine); err != nil {
		t.Fatalf("register queue: %v", err)
	}
	emitter := metricsEmitter{registry: registry}

	emitter.Emit(stubEvent{evt: &types.Event{
		Type: conversion.EventTypeFilled,
		Attributes: map[string]string{
			"collateral": "CLT",
			"settled":    "true",
		},
	}})

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "lien_conversion_queue_depth")
	if err != nil {
		t.Fatalf("gather queue depth: %v", err)
	}
	if count != 2 {
		t.Fatalf("queue depth series = %d, want supply and demand", count)
	}
	count, err = testutil.GatherAndCount(prometheus.DefaultGatherer, "lien_conversion_fills_total")
	if err != nil {
		t.Fatalf("gather fills: %v", err)
	}
	if count != 1 {
		t.Fatalf("fill series = %d, want 1", count)
	}
}

func TestMetricsEmitterCountsLifecycleOperations(t *testing.T) {
	emitter := metricsEmitter{registry: conversion.NewRegistry()}
	emitter.Emit(stubEvent{evt: &types.Event{Type: "mortgage.paid", Attributes: map[string]string{}}})

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "lien_mortgage_operations_total")
	if err != nil {
		t.Fatalf("gather operations: %v", err)
	}
	if count != 1 {
		t.Fatalf("operation series = %d, want 1", count)
	}
}
